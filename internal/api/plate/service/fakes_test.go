package plateService

import (
	"PlateVision/internal/entity"
	"PlateVision/pkg/redis"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeDetector struct {
	boxes []entity.BoundingBox
	err   error
	calls atomic.Int32
}

func (d *fakeDetector) Detect(ctx context.Context, img image.Image) ([]entity.BoundingBox, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.boxes, nil
}

func (d *fakeDetector) CheckHealth(ctx context.Context) error { return d.err }
func (d *fakeDetector) Close() error                          { return nil }

// fakeRecognizer answers by crop width so tests can tell boxes apart.
type fakeRecognizer struct {
	texts map[int]string
	fail  map[int]error
	delay time.Duration
	block bool

	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (r *fakeRecognizer) Recognize(ctx context.Context, crop image.Image) (string, error) {
	r.calls.Add(1)
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	w := crop.Bounds().Dx()
	if err, ok := r.fail[w]; ok {
		return "", err
	}
	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.texts[w], nil
}

func (r *fakeRecognizer) Name() string                          { return "fake" }
func (r *fakeRecognizer) CheckHealth(ctx context.Context) error { return nil }
func (r *fakeRecognizer) Close() error                          { return nil }

type fakeCache struct {
	mu      sync.Mutex
	results map[string]entity.PlateResult
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{results: map[string]entity.PlateResult{}}
}

func (c *fakeCache) GetPlate(ctx context.Context, fingerprint string) (*entity.PlateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[fingerprint]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	return &r, nil
}

func (c *fakeCache) SetPlate(ctx context.Context, fingerprint string, result *entity.PlateResult, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[fingerprint] = *result
	c.sets++
	return nil
}

func (c *fakeCache) Ping(ctx context.Context) error { return nil }
func (c *fakeCache) Close() error                   { return nil }

// box returns a box of the given width starting at x, full height of a 10px strip.
func box(x, w int) entity.BoundingBox {
	return entity.BoundingBox{X1: x, Y1: 0, X2: x + w, Y2: 10}
}

// fakeArchive holds every upload until release is closed.
type fakeArchive struct {
	release  chan struct{}
	started  chan struct{}
	uploaded atomic.Int32
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{release: make(chan struct{}), started: make(chan struct{}, 8)}
}

func (a *fakeArchive) UploadImage(ctx context.Context, data []byte, format string) (string, error) {
	a.started <- struct{}{}
	select {
	case <-a.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	a.uploaded.Add(1)
	return "s3://bucket/" + format, nil
}
