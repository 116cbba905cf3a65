package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timesheet-tracker/internal/vision"
)

// Extractor is the slice of the vision extractor the pipeline needs.
type Extractor interface {
	Extract(ctx context.Context, pngData []byte, ocrText string) (*vision.ScanResult, error)
}

// Upload is the per-request input: opaque image bytes plus the declared
// media type. Discarded after pipeline completion.
type Upload struct {
	Data        []byte
	ContentType string
}

// Outcome is the shaped response for one processed upload.
type Outcome struct {
	Message    string            `json:"message"`
	ImageData  *ImagePayload     `json:"image_data"`
	Validation *ValidationReport `json:"validation_results"`

	// PNG holds the normalized image for storage; not part of the
	// response body.
	PNG []byte `json:"-"`
}

// ImagePayload wraps the extraction result in the response shape consumed
// by the routing layer.
type ImagePayload struct {
	Data    RecordsPayload `json:"data"`
	Status  vision.Status  `json:"status"`
	Message string         `json:"message,omitempty"`
	Flags   []string       `json:"flags,omitempty"`
}

// RecordsPayload holds the normalized records.
type RecordsPayload struct {
	Records []Record `json:"records"`
}

// Pipeline sequences preprocessing, OCR, extraction, normalization and
// validation for one upload. Stages never reorder; each request is an
// independent task with no shared mutable state.
type Pipeline struct {
	extractor Extractor
	ocr       vision.OCR
	engine    Engine
	retries   int
	backoff   time.Duration
}

// NewPipeline creates a Pipeline. retries bounds how often a transient
// extraction-service failure is retried; backoff is the initial delay,
// doubled per attempt.
func NewPipeline(extractor Extractor, ocr vision.OCR, engine Engine, retries int, backoff time.Duration) *Pipeline {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Pipeline{
		extractor: extractor,
		ocr:       ocr,
		engine:    engine,
		retries:   retries,
		backoff:   backoff,
	}
}

// Process runs the full pipeline for one upload. Preprocessing failures
// are fatal and returned as errors (*vision.UnsupportedMediaError); OCR
// failures degrade to an empty hint; extraction-service failures are
// retried with exponential backoff and surface as *vision.ServiceError
// only once retries are exhausted. An unparseable model response is not an
// error: it yields an Outcome with failure status.
func (p *Pipeline) Process(ctx context.Context, upload Upload, asserted []UserInput) (*Outcome, error) {
	pngData, err := vision.Preprocess(upload.Data, upload.ContentType)
	if err != nil {
		return nil, err
	}

	ocrText := ""
	if p.ocr != nil {
		text, err := p.ocr.Text(ctx, pngData)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("OCR failed, continuing without hint", "error", err)
		} else {
			ocrText = text
		}
	}

	scan, err := p.extractWithRetry(ctx, pngData, ocrText)
	if err != nil {
		return nil, err
	}

	records, flags := Normalize(scan.Records)
	status := scan.Status
	if status == vision.StatusSuccess && len(records) == 0 {
		status = vision.StatusPartial
	}

	report := p.engine.Validate(records, asserted)

	outcome := &Outcome{
		ImageData: &ImagePayload{
			Data:    RecordsPayload{Records: records},
			Status:  status,
			Message: scan.Message,
			Flags:   flags,
		},
		Validation: report,
		PNG:        pngData,
	}

	switch {
	case status == vision.StatusFailure:
		outcome.Message = "could not read timesheet image"
	case !report.Valid:
		outcome.Message = "timesheet extracted but discrepancies found"
	default:
		outcome.Message = "file processed and validated successfully"
	}
	return outcome, nil
}

// extractWithRetry calls the extractor, retrying transient service errors
// with exponential backoff. Cancellation propagates from the request
// context through the wait and the outbound call.
func (p *Pipeline) extractWithRetry(ctx context.Context, pngData []byte, ocrText string) (*vision.ScanResult, error) {
	delay := p.backoff
	for attempt := 0; ; attempt++ {
		scan, err := p.extractor.Extract(ctx, pngData, ocrText)
		if err == nil {
			return scan, nil
		}

		var svcErr *vision.ServiceError
		if !errors.As(err, &svcErr) {
			return nil, fmt.Errorf("extracting timesheet: %w", err)
		}
		if attempt >= p.retries {
			return nil, fmt.Errorf("extraction service failed after %d attempts: %w", attempt+1, err)
		}

		slog.Warn("extraction service error, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
}
