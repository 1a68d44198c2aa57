// Package ocr runs local text recognition: ImageMagick preprocessing
// followed by tesseract. It is the fallback path when no AI provider
// answers.
package ocr

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
)

// Preprocessor enhances scanned invoices before OCR.
type Preprocessor struct {
	log *slog.Logger
}

// NewPreprocessor creates a new image preprocessor.
func NewPreprocessor(log *slog.Logger) *Preprocessor {
	return &Preprocessor{log: log}
}

// PreprocessImage reads and enhances an image file.
func (p *Preprocessor) PreprocessImage(imagePath string) ([]byte, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	return p.PreprocessImageFromBytes(imageData), nil
}

// PreprocessImageFromBytes applies the enhancement pipeline: resize,
// grayscale, contrast, denoise, sharpen. Any failure falls back to the
// original bytes; preprocessing is best effort.
func (p *Preprocessor) PreprocessImageFromBytes(imageData []byte) []byte {
	inputFile, err := os.CreateTemp("", "factura_in_*.jpg")
	if err != nil {
		return imageData
	}
	defer os.Remove(inputFile.Name())

	outputFile, err := os.CreateTemp("", "factura_out_*.jpg")
	if err != nil {
		inputFile.Close()
		return imageData
	}
	outputFile.Close()
	defer os.Remove(outputFile.Name())

	if _, err := inputFile.Write(imageData); err != nil {
		inputFile.Close()
		return imageData
	}
	inputFile.Close()

	args := []string{
		inputFile.Name(),
		"-resize", "2000x2000>",
		"-colorspace", "Gray",
		"-normalize",
		"-contrast-stretch", "2%x1%",
		"-despeckle",
		"-sharpen", "0x1",
		"-unsharp", "0x0.5+0.5+0",
		"-quality", "95",
		outputFile.Name(),
	}

	// 'magick' is ImageMagick 7, 'convert' the v6 fallback.
	var cmd *exec.Cmd
	if _, err := exec.LookPath("magick"); err == nil {
		cmd = exec.Command("magick", args...)
	} else {
		cmd = exec.Command("convert", args...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		p.log.Warn("imagemagick failed, using original image", "error", err, "stderr", stderr.String())
		return imageData
	}

	processed, err := os.ReadFile(outputFile.Name())
	if err != nil || len(processed) == 0 {
		return imageData
	}

	p.log.Debug("image enhanced", "original_bytes", len(imageData), "processed_bytes", len(processed))
	return processed
}

// Available reports whether an ImageMagick binary is installed.
func (p *Preprocessor) Available() bool {
	if _, err := exec.LookPath("magick"); err == nil {
		return true
	}
	_, err := exec.LookPath("convert")
	return err == nil
}
