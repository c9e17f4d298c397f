package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRequestIDMiddleware(t *testing.T) {
	mw := New(quietLogger(), 0, 0)
	app := fiber.New()
	app.Use(mw.NewRequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(mw.GetRequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	header := resp.Header.Get(RequestIDKey)
	if len(header) != 26 {
		t.Errorf("generated request id = %q, want a ULID", header)
	}
	if string(body) != header {
		t.Errorf("locals id %q differs from header %q", body, header)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDKey, "client-id")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(RequestIDKey); got != "client-id" {
		t.Errorf("request id = %q, want client-id", got)
	}
}

func TestRateLimiter(t *testing.T) {
	mw := New(quietLogger(), 0.001, 2)
	app := fiber.New()
	app.Use(mw.NewRateLimiter)
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		codes[i] = resp.StatusCode
		if i == 2 && resp.Header.Get(fiber.HeaderRetryAfter) == "" {
			t.Errorf("missing Retry-After header")
		}
	}

	if codes[0] != 200 || codes[1] != 200 || codes[2] != fiber.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestSanitizeRequestBody(t *testing.T) {
	got := sanitizeRequestBody(fiber.MIMEApplicationJSON, []byte(`{"image_base64":"aGVsbG8=","note":"x"}`))
	if strings.Contains(got, "aGVsbG8=") {
		t.Errorf("image data logged: %s", got)
	}
	if !strings.Contains(got, "8 bytes omitted") || !strings.Contains(got, `"note":"x"`) {
		t.Errorf("sanitized = %s", got)
	}

	if got := sanitizeRequestBody("multipart/form-data; boundary=abc", []byte("--abc")); got != "[multipart body]" {
		t.Errorf("multipart sanitized = %q", got)
	}
	if got := sanitizeRequestBody(fiber.MIMEApplicationJSON, []byte("{")); got != "[non-JSON body]" {
		t.Errorf("broken json sanitized = %q", got)
	}
}
