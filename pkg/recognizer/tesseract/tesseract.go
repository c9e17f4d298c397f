// Package tesseract registers the local Tesseract backend with the recognizer package.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"PlateVision/pkg/imaging"
	"PlateVision/pkg/recognizer"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

const (
	plateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	minCropHeight  = 64
)

func init() {
	recognizer.Register(recognizer.BackendTesseract, func(cfg recognizer.Config, logger *logrus.Logger) (recognizer.IRecognizer, error) {
		return New(cfg.TesseractLanguages, logger), nil
	})
}

type Recognizer struct {
	languages     []string
	clientFactory func() *gosseract.Client
	log           *logrus.Logger
}

func New(languages []string, logger *logrus.Logger) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{
		languages:     languages,
		clientFactory: gosseract.NewClient,
		log:           logger,
	}
}

func (r *Recognizer) Name() string { return recognizer.BackendTesseract }

// Recognize opens a client per call since gosseract clients must not be shared.
// Short crops are upscaled first; Tesseract does poorly below ~30px glyphs.
func (r *Recognizer) Recognize(ctx context.Context, crop image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload, err := imaging.EncodePNG(imaging.ScaleToHeight(imaging.ToRGB(crop), minCropHeight))
	if err != nil {
		return "", err
	}

	client := r.clientFactory()
	defer client.Close()

	if err := client.SetLanguage(r.languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("set page segmentation: %w", err)
	}
	if err := client.SetWhitelist(plateWhitelist); err != nil {
		return "", fmt.Errorf("set whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(payload); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	r.log.WithField("text", text).Debug("Tesseract recognized crop")

	return strings.TrimSpace(text), nil
}

func (r *Recognizer) CheckHealth(ctx context.Context) error {
	if gosseract.Version() == "" {
		return errors.New("tesseract library unavailable")
	}
	return nil
}

func (r *Recognizer) Close() error { return nil }
