package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// TextRecognizer is the boundary the pipeline sees: image bytes in,
// recognized text out.
type TextRecognizer interface {
	ExtractText(ctx context.Context, imageBytes []byte) (string, error)
}

// TesseractOCR runs the tesseract binary over a temp file.
type TesseractOCR struct {
	language string
}

// NewTesseractOCR creates the adapter. Default language is Spanish, the
// language of the documents this service reads.
func NewTesseractOCR(language string) *TesseractOCR {
	if language == "" {
		language = "spa"
	}
	return &TesseractOCR{language: language}
}

// ExtractText performs OCR on preprocessed image bytes.
func (t *TesseractOCR) ExtractText(ctx context.Context, imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", fmt.Errorf("empty image")
	}

	tmp, err := os.CreateTemp("", "ocr_*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(imageBytes); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, "tesseract", tmp.Name(), "stdout", "-l", t.language, "--psm", "6")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, stderr.String())
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("tesseract produced no text")
	}
	return text, nil
}

// Available reports whether the tesseract binary is installed.
func (t *TesseractOCR) Available() bool {
	_, err := exec.LookPath("tesseract")
	return err == nil
}
