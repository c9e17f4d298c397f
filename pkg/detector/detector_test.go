package detector

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(3, 3, color.Black)
	return img
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "grpc", URL: "http://localhost"}, quietLogger()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := New(Config{Backend: BackendHTTP}, quietLogger()); err == nil {
		t.Fatalf("expected error for missing URL")
	}
}

func TestHTTPDetectorSendsOptionsAndTruncatesBoxes(t *testing.T) {
	var gotFields map[string]string
	var gotImage bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != detectPath {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		_, gotImage = r.MultipartForm.File["file"]

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"detections":[{"x1":10.9,"y1":5.2,"x2":40.7,"y2":20.1,"confidence":0.91,"class":"license-plate"},{"x1":1,"y1":2,"x2":3,"y2":4,"confidence":0.3}]}`)
	}))
	defer srv.Close()

	det, err := New(Config{Backend: BackendHTTP, URL: srv.URL + "/", Weights: "keremberke/yolov5m-license-plate"}, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer det.Close()

	boxes, err := det.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if !gotImage {
		t.Fatalf("expected image part named file")
	}
	want := map[string]string{
		"conf":        "0.25",
		"iou":         "0.45",
		"agnostic":    "false",
		"multi_label": "false",
		"max_det":     "1000",
		"size":        "640",
		"augment":     "false",
		"weights":     "keremberke/yolov5m-license-plate",
	}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("field %s = %q, want %q", k, gotFields[k], v)
		}
	}

	if len(boxes) != 2 {
		t.Fatalf("len(boxes) = %d, want 2", len(boxes))
	}
	b := boxes[0]
	if b.X1 != 10 || b.Y1 != 5 || b.X2 != 40 || b.Y2 != 20 {
		t.Fatalf("box = %+v, want truncated coordinates", b)
	}
	if b.Class != "license-plate" || b.Confidence != 0.91 {
		t.Fatalf("box metadata = %+v", b)
	}
}

func TestHTTPDetectorPropagatesServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	det, _ := New(Config{URL: srv.URL}, quietLogger())
	_, err := det.Detect(context.Background(), testImage())
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("Detect() error = %v, want status in error", err)
	}
}

func TestHTTPDetectorHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	det, _ := New(Config{URL: srv.URL}, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := det.Detect(ctx, testImage()); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestHTTPDetectorHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	det, _ := New(Config{URL: srv.URL}, quietLogger())
	if err := det.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
}

func TestWebSocketDetectorRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	requests := make(chan wsRequest, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bad request"}`))
				continue
			}
			requests <- req
			conn.WriteMessage(websocket.TextMessage, []byte(`{"detections":[{"x1":1.5,"y1":2.5,"x2":30.9,"y2":12.1,"confidence":0.8}]}`))
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	det, err := New(Config{Backend: BackendWebSocket, URL: wsURL, Timeout: 2 * time.Second}, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer det.Close()

	for i := 0; i < 2; i++ {
		boxes, err := det.Detect(context.Background(), testImage())
		if err != nil {
			t.Fatalf("Detect() #%d error = %v", i, err)
		}
		if len(boxes) != 1 || boxes[0].X1 != 1 || boxes[0].X2 != 30 {
			t.Fatalf("boxes = %+v", boxes)
		}
	}

	req := <-requests
	if req.Image == "" || req.Conf != 0.25 || req.MaxDet != 1000 || req.Size != 640 {
		t.Fatalf("unexpected request frame: %+v", req)
	}
}

func TestWebSocketDetectorReportsServerError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"cuda out of memory"}`))
		}
	}))
	defer srv.Close()

	det, _ := New(Config{Backend: BackendWebSocket, URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, quietLogger())
	defer det.Close()

	_, err := det.Detect(context.Background(), testImage())
	if err == nil || !strings.Contains(err.Error(), "cuda out of memory") {
		t.Fatalf("Detect() error = %v", err)
	}
}
