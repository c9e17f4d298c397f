package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
)

type AppConfig struct {
	Port           string        `env:"APP_PORT" envDefault:"3000"`
	Env            string        `env:"APP_ENV" envDefault:"development" validate:"oneof=development production test"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760" validate:"min=1"`
	MaxImagePixels int64         `env:"MAX_IMAGE_PIXELS" envDefault:"40000000" validate:"min=1"`
	MaxBatchFiles  int           `env:"MAX_BATCH_FILES" envDefault:"8" validate:"min=1"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s" validate:"min=1ms"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"50" validate:"gt=0"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"100" validate:"min=1"`

	Detector   DetectorConfig
	Recognizer RecognizerConfig
	Pipeline   PipelineConfig
	Redis      RedisConfig
	AWS        AWSConfig
}

type DetectorConfig struct {
	Backend string        `env:"DETECTOR_BACKEND" envDefault:"http" validate:"oneof=http ws"`
	URL     string        `env:"DETECTOR_URL" envDefault:"http://localhost:8000" validate:"required,url"`
	Weights string        `env:"DETECTOR_WEIGHTS" envDefault:"keremberke/yolov5m-license-plate"`
	Timeout time.Duration `env:"DETECT_TIMEOUT" envDefault:"15s"`
}

type RecognizerConfig struct {
	Backend            string        `env:"RECOGNIZER_BACKEND" envDefault:"trocr" validate:"oneof=trocr gemini tesseract"`
	URL                string        `env:"RECOGNIZER_URL" envDefault:"http://localhost:8001" validate:"required_if=Backend trocr,omitempty,url"`
	Processor          string        `env:"TROCR_PROCESSOR" envDefault:"microsoft/trocr-base-printed"`
	Model              string        `env:"TROCR_MODEL" envDefault:"microsoft/trocr-base-printed"`
	CRNNModel          string        `env:"CRNN_MODEL" envDefault:"hezarai/crnn-fa-64x256-license-plate-recognition"`
	Timeout            time.Duration `env:"RECOGNIZE_TIMEOUT" envDefault:"10s"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY" validate:"required_if=Backend gemini"`
	GeminiModelName    string        `env:"GEMINI_MODEL_NAME" envDefault:"gemini-1.5-flash"`
	TesseractLanguages []string      `env:"TESSERACT_LANGUAGES" envDefault:"eng" envSeparator:","`
}

type PipelineConfig struct {
	WorkerLimit      int `env:"WORKER_LIMIT" envDefault:"8" validate:"min=1"`
	ImageConcurrency int `env:"IMAGE_CONCURRENCY" envDefault:"4" validate:"min=1"`
}

type RedisConfig struct {
	Address  string        `env:"REDIS_ADDRESS"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0" validate:"min=0"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

type AWSConfig struct {
	BucketName      string `env:"AWS_BUCKET_NAME"`
	Region          string `env:"AWS_REGION" envDefault:"ap-southeast-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	UploadPrefix    string `env:"AWS_UPLOAD_PREFIX" envDefault:"plates"`
}

// multipartOverhead leaves room for boundaries, part headers and form fields.
const multipartOverhead = 1 << 20

// MaxRequestBytes is the largest request body accepted: a full batch of maximum-size files,
// or one maximum-size image sent as base64 JSON, whichever is larger.
func (c *AppConfig) MaxRequestBytes() int {
	batch := int64(c.MaxBatchFiles) * c.MaxUploadBytes
	base64JSON := (c.MaxUploadBytes + 2) / 3 * 4
	return int(max(batch, base64JSON) + multipartOverhead)
}

// LoadConfig parses the environment into AppConfig and validates it with v.
func LoadConfig(v *validator.Validate) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
