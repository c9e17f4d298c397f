package config

import (
	"PlateVision/internal/api/plate"
	plateHandler "PlateVision/internal/api/plate/handler"
	plateService "PlateVision/internal/api/plate/service"
	"PlateVision/internal/middleware"
	"PlateVision/pkg/detector"
	"PlateVision/pkg/gemini"
	"PlateVision/pkg/metrics"
	"PlateVision/pkg/recognizer"
	"PlateVision/pkg/redis"
	"PlateVision/pkg/s3"
	"PlateVision/pkg/utils"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	log         *logrus.Logger
	cfg         *AppConfig
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	detector    detector.IDetector
	recognizer  recognizer.IRecognizer
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	metrics     bool
	plate       *plateHandler.PlateHandler
	plateSvc    plateService.IPlateService
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if server.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if server.recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithAppConfig(cfg *AppConfig) ServerOption {
	return func(s *Server) error {
		s.cfg = cfg
		return nil
	}
}

// WithDetector connects the detector described by the app config unless d is given.
func WithDetector(d detector.IDetector) ServerOption {
	return func(s *Server) error {
		if d != nil {
			s.detector = d
			return nil
		}
		if s.cfg == nil {
			return fmt.Errorf("app config must be set before detector")
		}

		created, err := detector.New(detector.Config{
			Backend: s.cfg.Detector.Backend,
			URL:     s.cfg.Detector.URL,
			Weights: s.cfg.Detector.Weights,
			Timeout: s.cfg.Detector.Timeout,
		}, s.log)
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to create detector: %v", err)
			}
			return fmt.Errorf("failed to create detector: %w", err)
		}
		s.detector = created
		return nil
	}
}

// WithRecognizer builds the recognizer backend named by the app config unless r is given.
func WithRecognizer(r recognizer.IRecognizer) ServerOption {
	return func(s *Server) error {
		if r != nil {
			s.recognizer = r
			return nil
		}
		if s.cfg == nil {
			return fmt.Errorf("app config must be set before recognizer")
		}

		rc := s.cfg.Recognizer
		created, err := recognizer.New(recognizer.Config{
			Backend:   rc.Backend,
			URL:       rc.URL,
			Processor: rc.Processor,
			Model:     rc.Model,
			Timeout:   rc.Timeout,
			Gemini: gemini.Config{
				APIKey:    rc.GeminiAPIKey,
				ModelName: rc.GeminiModelName,
			},
			TesseractLanguages: rc.TesseractLanguages,
		}, s.log)
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to create recognizer: %v", err)
			}
			return fmt.Errorf("failed to create recognizer: %w", err)
		}
		s.recognizer = created
		return nil
	}
}

// WithRedisServer enables the result cache. A nil client with no REDIS_ADDRESS leaves it off.
func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		if redisServer != nil {
			s.redisServer = redisServer
			return nil
		}
		if s.cfg == nil || s.cfg.Redis.Address == "" {
			return nil
		}
		s.redisServer = redis.New(redis.Config{
			Address:  s.cfg.Redis.Address,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		}, s.log)
		return nil
	}
}

// WithS3Client enables upload archiving when AWS_BUCKET_NAME is set.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil || s.cfg.AWS.BucketName == "" {
			return nil
		}

		client, err := s3.New(s3.Config{
			Bucket:          s.cfg.AWS.BucketName,
			Region:          s.cfg.AWS.Region,
			AccessKeyID:     s.cfg.AWS.AccessKeyID,
			SecretAccessKey: s.cfg.AWS.SecretAccessKey,
			Prefix:          s.cfg.AWS.UploadPrefix,
		})
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		rps, burst := 0.0, 0
		if s.cfg != nil {
			rps, burst = s.cfg.RateLimitRPS, s.cfg.RateLimitBurst
		}
		s.middleware = middleware.New(s.log, rps, burst)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		var maxUpload int64
		if s.cfg != nil {
			maxUpload = s.cfg.MaxUploadBytes
		}
		s.utils = utils.New(maxUpload)
		return nil
	}
}

func WithMetrics() ServerOption {
	return func(s *Server) error {
		metrics.Init()
		s.metrics = true
		return nil
	}
}

func (s *Server) RegisterHandler() {
	if s.middleware == nil {
		s.middleware = middleware.New(s.log, s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)
	}
	if s.utils == nil {
		s.utils = utils.New(s.cfg.MaxUploadBytes)
	}
	if s.validator == nil {
		s.validator = NewValidator()
	}

	// Plate Domain
	plateServices := plateService.NewPlateService(
		s.log,
		s.detector,
		s.recognizer,
		s.redisServer,
		s.s3Client,
		s.utils,
		plateService.Config{
			WorkerLimit:      s.cfg.Pipeline.WorkerLimit,
			ImageConcurrency: s.cfg.Pipeline.ImageConcurrency,
			DetectTimeout:    s.cfg.Detector.Timeout,
			RecognizeTimeout: s.cfg.Recognizer.Timeout,
			CacheTTL:         s.cfg.Redis.CacheTTL,
			MaxImagePixels:   s.cfg.MaxImagePixels,
			DetectorBackend:  s.cfg.Detector.Backend,
		},
	)
	s.plateSvc = plateServices
	s.plate = plateHandler.New(s.log, s.validator, s.middleware, plateServices, s.utils, s.cfg.RequestTimeout, s.cfg.MaxBatchFiles, plate.ModelSources{
		DetectorWeights:     s.cfg.Detector.Weights,
		CRNNModel:           s.cfg.Recognizer.CRNNModel,
		RecognizerProcessor: s.cfg.Recognizer.Processor,
		RecognizerModel:     s.cfg.Recognizer.Model,
		RecognizerBackend:   s.recognizer.Name(),
	})

	s.handlers = append(s.handlers, s.plate)
	s.mountRoutes()
}

// mountRoutes installs the global middleware and every route.
func (s *Server) mountRoutes() {
	s.engine.Use(recover.New())
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware)
	if s.metrics {
		s.engine.Use(s.middleware.NewMetricsMiddleware)
		s.engine.Get("/metrics", metrics.Handler())
	}

	s.plate.StartRoot(s.engine)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) Run() error {
	return s.engine.Listen(fmt.Sprintf(":%s", s.cfg.Port))
}

// Shutdown stops accepting requests, waits up to timeout for in-flight ones, drains pending
// archive uploads and then closes the model and cache clients.
func (s *Server) Shutdown(timeout time.Duration) error {
	var errs []error
	if err := s.engine.ShutdownWithTimeout(timeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if s.plateSvc != nil {
		if err := s.plateSvc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close plate service: %w", err))
		}
	}
	if err := s.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if err := s.recognizer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recognizer: %w", err))
	}
	if s.redisServer != nil {
		if err := s.redisServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
