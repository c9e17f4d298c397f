package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"PlateVision/pkg/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	recognizePath = "/recognize"
	healthPath    = "/health"
)

type trocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// trocrRecognizer posts RGB crops to a TrOCR model server, which runs the processor,
// generation and special-token-free decoding.
type trocrRecognizer struct {
	baseURL   string
	processor string
	model     string
	client    *http.Client
	log       *logrus.Logger
}

func newTrOCRRecognizer(cfg Config, logger *logrus.Logger) *trocrRecognizer {
	return &trocrRecognizer{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		processor: cfg.Processor,
		model:     cfg.Model,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       logger,
	}
}

func (r *trocrRecognizer) Name() string { return BackendTrOCR }

func (r *trocrRecognizer) Recognize(ctx context.Context, crop image.Image) (string, error) {
	payload, err := imaging.EncodePNG(imaging.ToRGB(crop))
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "crop.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", fmt.Errorf("write crop data: %w", err)
	}
	for _, field := range [][2]string{{"processor", r.processor}, {"model", r.model}} {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+recognizePath, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("recognizer responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result trocrResponse
	if err := jsoniter.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("recognizer error: %s", result.Error)
	}

	return result.Text, nil
}

func (r *trocrRecognizer) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+healthPath, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recognizer unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (r *trocrRecognizer) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
