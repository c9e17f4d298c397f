package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"PlateVision/internal/entity"
	"PlateVision/pkg/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type httpDetector struct {
	baseURL string
	weights string
	opts    Options
	client  *http.Client
	log     *logrus.Logger
}

func newHTTPDetector(cfg Config, logger *logrus.Logger) *httpDetector {
	return &httpDetector{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		weights: cfg.Weights,
		opts:    cfg.Options,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     logger,
	}
}

func (d *httpDetector) Detect(ctx context.Context, img image.Image) ([]entity.BoundingBox, error) {
	payload, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}

	fields := d.opts.fields()
	if d.weights != "" {
		fields["weights"] = d.weights
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+detectPath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result detectionResponse
	if err := jsoniter.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("detector error: %s", result.Error)
	}

	boxes := result.boxes(d.opts.MaxDetections)
	d.log.WithFields(logrus.Fields{
		"boxes":       len(boxes),
		"image_bytes": len(payload),
	}).Debug("Detector returned boxes")

	return boxes, nil
}

func (d *httpDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+healthPath, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector unhealthy: %d", resp.StatusCode)
	}

	return nil
}

func (d *httpDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
