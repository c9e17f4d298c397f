package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PlateVision/internal/entity"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "platevision:plate:"

// ErrCacheMiss is returned by GetPlate when no result is stored for the fingerprint.
var ErrCacheMiss = errors.New("plate result not cached")

type IRedis interface {
	GetPlate(ctx context.Context, fingerprint string) (*entity.PlateResult, error)
	SetPlate(ctx context.Context, fingerprint string, result *entity.PlateResult, expiration time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Address  string
	Password string
	DB       int
}

type redisClient struct {
	client *redis.Client
	log    *logrus.Logger
}

func New(cfg Config, logger *logrus.Logger) IRedis {
	logger.Info(fmt.Sprintf("Connecting to Redis at %s...", cfg.Address))

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logger.Info("Successfully connected to Redis")
	}

	return NewFromClient(client, logger)
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client, logger *logrus.Logger) IRedis {
	return &redisClient{client: client, log: logger}
}

func (r *redisClient) GetPlate(ctx context.Context, fingerprint string) (*entity.PlateResult, error) {
	key := keyPrefix + fingerprint
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.log.Debug(fmt.Sprintf("Plate result not cached for key %s", key))
		return nil, ErrCacheMiss
	} else if err != nil {
		r.log.Error(fmt.Sprintf("Error getting plate result for key %s: %v", key, err))
		return nil, err
	}

	var result entity.PlateResult
	if err := jsoniter.Unmarshal(val, &result); err != nil {
		return nil, fmt.Errorf("decode cached plate result: %w", err)
	}
	return &result, nil
}

func (r *redisClient) SetPlate(ctx context.Context, fingerprint string, result *entity.PlateResult, expiration time.Duration) error {
	key := keyPrefix + fingerprint
	val, err := jsoniter.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode plate result: %w", err)
	}

	if err := r.client.Set(ctx, key, val, expiration).Err(); err != nil {
		r.log.Error(fmt.Sprintf("Error caching plate result for key %s: %v", key, err))
		return err
	}
	r.log.Debug(fmt.Sprintf("Cached plate result for key %s with expiration %v", key, expiration))
	return nil
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
