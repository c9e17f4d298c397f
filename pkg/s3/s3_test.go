package s3

import (
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	tests := []struct {
		prefix, format, want string
	}{
		{"plates", "jpeg", "plates/2026/03/09/abc.jpeg"},
		{"", "png", "2026/03/09/abc.png"},
		{"uploads/raw", "", "uploads/raw/2026/03/09/abc.bin"},
	}

	for _, tt := range tests {
		if got := objectKey(tt.prefix, at, "abc", tt.format); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.format, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("webp"); got != "image/webp" {
		t.Fatalf("contentType(webp) = %q", got)
	}
	if got := contentType(""); got != "application/octet-stream" {
		t.Fatalf("contentType(\"\") = %q", got)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(Config{Region: "ap-southeast-1"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
