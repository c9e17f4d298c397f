package plateService

import (
	"PlateVision/internal/entity"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AB-123 CD", "AB123CD"},
		{"", ""},
		{"  ", ""},
		{"b 12·34-é", "b1234"},
		{"Z9z9", "Z9z9"},
		{"۱۲۳ABC", "ABC"},
	}

	for _, tt := range tests {
		got := CleanText(tt.in)
		if got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := CleanText(got); again != got {
			t.Errorf("CleanText not idempotent on %q: %q", got, again)
		}
	}
}

func TestFlatText(t *testing.T) {
	recs := []entity.PlateRecognition{{Text: "AB1"}, {Text: ""}, {Text: "C2"}}
	if got := FlatText(recs); got != "AB1  C2" {
		t.Errorf("FlatText = %q", got)
	}
	if got := FlatText(nil); got != "" {
		t.Errorf("FlatText(nil) = %q", got)
	}
}
