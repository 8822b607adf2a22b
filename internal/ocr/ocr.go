// Package ocr defines the contract to the external text-recognition
// collaborator. The scan engine consumes recognized lines only; it never
// performs recognition itself.
package ocr

import "context"

// Result contains the recognized text for one frame.
type Result struct {
	// Lines are the recognized text lines in appearance order, unfiltered.
	Lines []string
}

// Client exposes the subset of OCR functionality used by the scan engine.
type Client interface {
	Recognize(ctx context.Context, image []byte) (*Result, error)
}
