package entity

import "image"

// BoundingBox is a detector box in pixel coordinates of the decoded image. Boxes are taken
// as reported; Rect canonicalizes them and cropping clamps them to the image.
type BoundingBox struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence,omitempty"`
	Class      string  `json:"class,omitempty"`
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

type PlateRecognition struct {
	Index   int         `json:"index"`
	Box     BoundingBox `json:"box"`
	RawText string      `json:"raw_text"`
	Text    string      `json:"text"`
}

type PlateResult struct {
	Plate        string             `json:"plate"`
	Recognitions []PlateRecognition `json:"recognitions"`
	Cached       bool               `json:"cached"`
	ElapsedMs    int64              `json:"elapsed_ms"`
}
