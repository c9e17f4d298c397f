package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"PlateVision/internal/entity"
	"PlateVision/pkg/imaging"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type wsRequest struct {
	Image      string  `json:"image"`
	Weights    string  `json:"weights,omitempty"`
	Conf       float64 `json:"conf"`
	IoU        float64 `json:"iou"`
	Agnostic   bool    `json:"agnostic"`
	MultiLabel bool    `json:"multi_label"`
	MaxDet     int     `json:"max_det"`
	Size       int     `json:"size"`
	Augment    bool    `json:"augment"`
}

// wsDetector keeps one connection to the model server. A request holds mu for its whole
// write/read exchange, so concurrent callers are served one at a time.
type wsDetector struct {
	url          string
	weights      string
	opts         Options
	conn         *websocket.Conn
	mu           sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *logrus.Logger
	closed       bool
}

func newWebSocketDetector(cfg Config, logger *logrus.Logger) *wsDetector {
	readTimeout := cfg.Timeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}

	d := &wsDetector{
		url:          strings.TrimRight(cfg.URL, "/") + detectPath,
		weights:      cfg.Weights,
		opts:         cfg.Options,
		pingInterval: 30 * time.Second,
		readTimeout:  readTimeout,
		writeTimeout: 5 * time.Second,
		log:          logger,
	}

	go d.connectInBackground()

	return d
}

func (d *wsDetector) connectInBackground() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.connectLocked(); err != nil {
		d.log.Warnf("Initial connection to detector at %s failed: %v. Will retry on demand.", d.url, err)
		return
	}
	d.log.Infof("Connected to detector at %s", d.url)
}

func (d *wsDetector) connectLocked() (*websocket.Conn, error) {
	if d.closed {
		return nil, fmt.Errorf("detector client closed")
	}
	if d.conn != nil {
		return d.conn, nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(d.writeTimeout))
		if err != nil {
			d.log.Warnf("Error sending pong to detector: %v", err)
		}
		return nil
	})

	d.conn = conn
	go d.keepAlive(conn)

	return conn, nil
}

// dropLocked forgets conn so the next call redials.
func (d *wsDetector) dropLocked(conn *websocket.Conn) {
	if d.conn == conn {
		d.conn = nil
	}
	conn.Close()
}

func (d *wsDetector) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(d.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		d.mu.Lock()
		current := d.conn
		d.mu.Unlock()

		if current != conn {
			return
		}

		if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(d.writeTimeout)); err != nil {
			d.log.Warnf("Ping to detector failed, marking connection as dead: %v", err)
			d.mu.Lock()
			d.dropLocked(conn)
			d.mu.Unlock()
			return
		}
	}
}

func (d *wsDetector) Detect(ctx context.Context, img image.Image) ([]entity.BoundingBox, error) {
	payload, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	frame, err := jsoniter.Marshal(wsRequest{
		Image:      base64.StdEncoding.EncodeToString(payload),
		Weights:    d.weights,
		Conf:       d.opts.Confidence,
		IoU:        d.opts.IoU,
		Agnostic:   d.opts.Agnostic,
		MultiLabel: d.opts.MultiLabel,
		MaxDet:     d.opts.MaxDetections,
		Size:       d.opts.Size,
		Augment:    d.opts.Augment,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := d.connectLocked()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to detector: %w", err)
	}

	writeDeadline := time.Now().Add(d.writeTimeout)
	readDeadline := time.Now().Add(d.readTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		if deadline.Before(writeDeadline) {
			writeDeadline = deadline
		}
		if deadline.Before(readDeadline) {
			readDeadline = deadline
		}
	}

	// Unblocks the read below when the caller gives up before the deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	conn.SetWriteDeadline(writeDeadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		d.dropLocked(conn)
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		d.dropLocked(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("error reading detections: %w", ctxErr)
		}
		return nil, fmt.Errorf("error reading detections: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var result detectionResponse
	if err := jsoniter.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling detections: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("detector error: %s", result.Error)
	}

	boxes := result.boxes(d.opts.MaxDetections)
	d.log.WithFields(logrus.Fields{
		"boxes":       len(boxes),
		"image_bytes": len(payload),
	}).Debug("Detector returned boxes over websocket")

	return boxes, nil
}

func (d *wsDetector) CheckHealth(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connectLocked()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(d.writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
		d.dropLocked(conn)
		return fmt.Errorf("detector unhealthy: %w", err)
	}

	return nil
}

func (d *wsDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.conn != nil {
		err := d.conn.Close()
		d.conn = nil
		return err
	}

	return nil
}
