// Package recognizer reads the characters of a cropped plate image.
//
// Every backend is safe for concurrent use. The tesseract backend lives in a subpackage
// that registers itself; cmd/app imports it only under the tesseract build tag.
package recognizer

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"PlateVision/pkg/gemini"
	"github.com/sirupsen/logrus"
)

const (
	BackendTrOCR     = "trocr"
	BackendGemini    = "gemini"
	BackendTesseract = "tesseract"
)

type IRecognizer interface {
	Recognize(ctx context.Context, crop image.Image) (string, error)
	Name() string
	CheckHealth(ctx context.Context) error
	Close() error
}

type Config struct {
	Backend   string
	URL       string
	Processor string
	Model     string
	Timeout   time.Duration

	Gemini             gemini.Config
	TesseractLanguages []string
}

// Factory builds a recognizer for a backend registered from outside this package.
type Factory func(cfg Config, logger *logrus.Logger) (IRecognizer, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

func Register(backend string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[backend] = factory
}

func New(cfg Config, logger *logrus.Logger) (IRecognizer, error) {
	switch cfg.Backend {
	case BackendTrOCR, "":
		if cfg.URL == "" {
			return nil, fmt.Errorf("recognizer URL is required for %s", BackendTrOCR)
		}
		return newTrOCRRecognizer(cfg, logger), nil
	case BackendGemini:
		client, err := gemini.NewGeminiClient(cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return newGeminiRecognizer(client, logger), nil
	default:
		factoriesMu.RLock()
		factory, ok := factories[cfg.Backend]
		factoriesMu.RUnlock()
		if !ok && cfg.Backend == BackendTesseract {
			return nil, fmt.Errorf("recognizer backend %q is not compiled in; build with -tags tesseract", cfg.Backend)
		}
		if !ok {
			return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
		}
		return factory(cfg, logger)
	}
}
