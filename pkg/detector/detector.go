// Package detector locates license plates by calling a YOLOv5 model server.
//
// Implementations are safe for concurrent use.
package detector

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"PlateVision/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	BackendHTTP      = "http"
	BackendWebSocket = "ws"

	detectPath = "/detect"
	healthPath = "/health"
)

type IDetector interface {
	Detect(ctx context.Context, img image.Image) ([]entity.BoundingBox, error)
	CheckHealth(ctx context.Context) error
	Close() error
}

// Options are the inference settings sent with every request.
type Options struct {
	Confidence    float64
	IoU           float64
	Agnostic      bool
	MultiLabel    bool
	MaxDetections int
	Size          int
	Augment       bool
}

func DefaultOptions() Options {
	return Options{
		Confidence:    0.25,
		IoU:           0.45,
		Agnostic:      false,
		MultiLabel:    false,
		MaxDetections: 1000,
		Size:          640,
		Augment:       false,
	}
}

func (o Options) fields() map[string]string {
	return map[string]string{
		"conf":        strconv.FormatFloat(o.Confidence, 'f', -1, 64),
		"iou":         strconv.FormatFloat(o.IoU, 'f', -1, 64),
		"agnostic":    strconv.FormatBool(o.Agnostic),
		"multi_label": strconv.FormatBool(o.MultiLabel),
		"max_det":     strconv.Itoa(o.MaxDetections),
		"size":        strconv.Itoa(o.Size),
		"augment":     strconv.FormatBool(o.Augment),
	}
}

type Config struct {
	Backend string
	URL     string
	Weights string
	Timeout time.Duration
	Options Options
}

func New(cfg Config, logger *logrus.Logger) (IDetector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("detector URL is required")
	}
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}

	switch cfg.Backend {
	case BackendHTTP, "":
		return newHTTPDetector(cfg, logger), nil
	case BackendWebSocket:
		return newWebSocketDetector(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

type detection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

type detectionResponse struct {
	Detections []detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// boxes truncates coordinates toward zero, as the model server's integer cast does, and
// enforces the detection cap on our side too.
func (r detectionResponse) boxes(maxDetections int) []entity.BoundingBox {
	dets := r.Detections
	if maxDetections > 0 && len(dets) > maxDetections {
		dets = dets[:maxDetections]
	}

	boxes := make([]entity.BoundingBox, 0, len(dets))
	for _, d := range dets {
		boxes = append(boxes, entity.BoundingBox{
			X1:         int(d.X1),
			Y1:         int(d.Y1),
			X2:         int(d.X2),
			Y2:         int(d.Y2),
			Confidence: d.Confidence,
			Class:      d.Class,
		})
	}
	return boxes
}
