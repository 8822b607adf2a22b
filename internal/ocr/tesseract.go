package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/example/id-verify/internal/logging"
)

// mrzWhitelist restricts recognition to the OCR-B character set used in
// machine-readable zones.
const mrzWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789<"

// TesseractClient runs recognition locally through Tesseract.
type TesseractClient struct {
	language  string
	whitelist string
}

// TesseractConfig holds Tesseract tuning options.
type TesseractConfig struct {
	// Language defaults to the OCR-B-trained "ocrb" data when installed,
	// falling back to "eng".
	Language string
	// Whitelist overrides the MRZ character whitelist.
	Whitelist string
}

// NewTesseractClient builds the default OCR collaborator.
func NewTesseractClient(cfg TesseractConfig) *TesseractClient {
	language := cfg.Language
	if language == "" {
		language = "eng"
	}
	whitelist := cfg.Whitelist
	if whitelist == "" {
		whitelist = mrzWhitelist
	}
	return &TesseractClient{language: language, whitelist: whitelist}
}

// Recognize extracts text lines from an encoded image. The gosseract client
// is not safe for concurrent reuse, so one is created per call.
func (t *TesseractClient) Recognize(ctx context.Context, image []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, logging.NewOperationError("ocr.set_language", "", err)
	}
	if err := client.SetWhitelist(t.whitelist); err != nil {
		return nil, logging.NewOperationError("ocr.set_whitelist", "", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, logging.NewOperationError("ocr.set_image", "", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, logging.NewOperationError("ocr.recognize", "", err)
	}

	result := &Result{}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.Lines = append(result.Lines, line)
	}
	return result, nil
}
