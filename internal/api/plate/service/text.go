package plateService

import (
	"PlateVision/internal/entity"
	"strings"
)

// CleanText keeps only ASCII letters and digits, in their original order.
func CleanText(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, text)
}

// FlatText joins the cleaned texts in box order with single spaces. An empty text still
// occupies its slot, so n recognitions always give n space-separated tokens.
func FlatText(recognitions []entity.PlateRecognition) string {
	texts := make([]string, len(recognitions))
	for i, r := range recognitions {
		texts[i] = r.Text
	}
	return strings.Join(texts, " ")
}
