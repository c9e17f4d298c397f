package recognizer

import (
	"context"
	"image"
	"strings"

	"PlateVision/pkg/gemini"
	"PlateVision/pkg/imaging"
	"github.com/sirupsen/logrus"
)

const platePrompt = `Read the vehicle license plate in this image.
Respond with the plate characters only, exactly as printed, on a single line.
If no characters are readable, respond with an empty line.`

type geminiRecognizer struct {
	client gemini.IGemini
	log    *logrus.Logger
}

func newGeminiRecognizer(client gemini.IGemini, logger *logrus.Logger) *geminiRecognizer {
	return &geminiRecognizer{client: client, log: logger}
}

func (r *geminiRecognizer) Name() string { return BackendGemini }

func (r *geminiRecognizer) Recognize(ctx context.Context, crop image.Image) (string, error) {
	payload, err := imaging.EncodePNG(imaging.ToRGB(crop))
	if err != nil {
		return "", err
	}

	text, err := r.client.AnalyzeImage(ctx, payload, "png", platePrompt)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

func (r *geminiRecognizer) CheckHealth(ctx context.Context) error { return nil }

func (r *geminiRecognizer) Close() error { return r.client.Close() }
