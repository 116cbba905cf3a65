package vision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tesseract runs the tesseract binary against normalized image bytes. OCR
// passes are CPU-heavy, so a bounded worker pool keeps concurrent requests
// from running them unbounded.
type Tesseract struct {
	binary  string
	workers chan struct{}
}

// NewTesseract creates a Tesseract OCR engine. binary defaults to
// "tesseract" on PATH; workers defaults to 2.
func NewTesseract(binary string, workers int) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if workers <= 0 {
		workers = 2
	}
	return &Tesseract{
		binary:  binary,
		workers: make(chan struct{}, workers),
	}
}

// Text extracts plain text from a PNG image. Blocks until a worker slot is
// free or the context is cancelled.
func (t *Tesseract) Text(ctx context.Context, pngData []byte) (string, error) {
	select {
	case t.workers <- struct{}{}:
		defer func() { <-t.workers }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "--psm", "6")
	cmd.Stdin = bytes.NewReader(pngData)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// NoOCR is an OCR engine that always returns empty text, for deployments
// without a local tesseract install.
type NoOCR struct{}

func (NoOCR) Text(ctx context.Context, pngData []byte) (string, error) {
	return "", nil
}
