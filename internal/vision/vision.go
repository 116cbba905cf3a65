package vision

import (
	"context"
	"encoding/json"
	"fmt"
)

// RawRecord is a single timesheet row as reported by the vision model,
// before any type coercion. Scalar fields may arrive as strings or numbers
// and are kept as text until normalization.
type RawRecord struct {
	Date         Flex `json:"date"`
	TimeIn       Flex `json:"time_in"`
	TimeOut      Flex `json:"time_out"`
	LunchTimeout Flex `json:"lunch_timeout"`
	TotalHours   Flex `json:"total_hours"`
	IsDailyEntry bool `json:"is_daily_entry"`
	Overnight    bool `json:"overnight"`
}

// Empty reports whether the record carries no field values at all.
func (r RawRecord) Empty() bool {
	return r.Date == "" && r.TimeIn == "" && r.TimeOut == "" &&
		r.LunchTimeout == "" && r.TotalHours == ""
}

// Flex is a JSON scalar that may arrive as a string, a number, or null.
type Flex string

func (f *Flex) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Flex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = Flex(n.String())
	return nil
}

func (f Flex) String() string { return string(f) }

// Status classifies the outcome of a scan.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// ScanResult is the outcome of one extraction pass. A failure status is a
// value, not an error: callers must check Status rather than rely on a
// returned error, because a degraded-but-informative result beats aborting.
type ScanResult struct {
	Records []RawRecord `json:"records"`
	Status  Status      `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Provider sends an image and prompt to a vision-capable model and returns
// the raw text of its response.
type Provider interface {
	GenerateContent(ctx context.Context, pngData []byte, prompt string) (string, error)

	// Close releases provider resources.
	Close() error
}

// OCR produces a plain-text reading of a normalized image. Results are used
// only as an extraction hint; failures never block the pipeline.
type OCR interface {
	Text(ctx context.Context, pngData []byte) (string, error)
}

// UnsupportedMediaError indicates the upload could not be decoded as any
// supported raster format. Fatal for the request.
type UnsupportedMediaError struct {
	MediaType string
	Err       error
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported media %q: %v", e.MediaType, e.Err)
}

func (e *UnsupportedMediaError) Unwrap() error { return e.Err }

// ServiceError indicates the model provider call itself failed (network,
// quota). Transient: the orchestrator may retry it.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
