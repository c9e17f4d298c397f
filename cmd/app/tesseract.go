//go:build tesseract

package main

// Registers the cgo tesseract recognizer; build with -tags tesseract.
import _ "PlateVision/pkg/recognizer/tesseract"
