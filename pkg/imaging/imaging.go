// Package imaging holds the pixel-level helpers of the plate pipeline: decoding uploads,
// cropping detector boxes and preparing crops for the recognizers.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage    = errors.New("image has no pixels")
	ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Decode decodes any registered format (JPEG, PNG, GIF, BMP, TIFF, WebP) and returns the
// format name reported by the decoder. The header is read first and images with more than
// maxPixels pixels are rejected before any pixel buffer is allocated; maxPixels <= 0 means
// no limit.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", ErrEmptyImage
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

// Crop returns the region r of img. r is canonicalized (inverted corners swapped) and
// clamped to the image bounds; ok is false when nothing is left after clamping.
// The returned image shares pixels with img when img supports SubImage.
func Crop(img image.Image, r image.Rectangle) (image.Image, bool) {
	r = r.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return nil, false
	}

	if si, ok := img.(subImager); ok {
		return si.SubImage(r), true
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Copy(dst, image.Point{}, img, r, xdraw.Src, nil)
	return dst, true
}

// ToRGB drops the alpha channel without compositing, so a translucent pixel keeps its
// straight (non-premultiplied) color. The result origin is (0, 0).
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// ScaleToHeight resizes img to height h keeping the aspect ratio. Images already at least h
// pixels tall are returned unchanged.
func ScaleToHeight(img image.Image, h int) image.Image {
	b := img.Bounds()
	if h <= 0 || b.Dy() >= h {
		return img
	}
	w := b.Dx() * h / b.Dy()
	if w < 1 {
		w = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
