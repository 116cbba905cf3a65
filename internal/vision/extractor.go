package vision

import (
	"context"
	"fmt"
	"strings"
)

// timesheetScanPrompt is the shared prompt used by all providers. The OCR
// hint slot is filled in by buildPrompt.
const timesheetScanPrompt = `You are analyzing a photographed or scanned employee timesheet. Carefully read all text in the image and extract every timesheet entry you can find. A timesheet entry has:

1. **date**: The calendar date of the entry in YYYY-MM-DD format. Look for a date column or a date written near the entry.
2. **time_in**: The clock-in (start) time in HH:MM 24-hour format.
3. **time_out**: The clock-out (end) time in HH:MM 24-hour format.
4. **lunch_timeout**: The lunch or break duration in minutes (numeric).
5. **total_hours**: The total hours worked as a decimal number.
6. **is_daily_entry**: true if the sheet is a single full-day entry, false if it is a multi-row weekly sheet.

%sReturn ONLY valid JSON in this exact format:
{
  "records": [
    {
      "date": "2023-07-01",
      "time_in": "09:00",
      "time_out": "17:00",
      "lunch_timeout": 30,
      "total_hours": 7.5,
      "is_daily_entry": false
    }
  ]
}

Important:
- If there is only one entry, still use the 'records' array with a single object
- Times must be 24-hour HH:MM; dates must be YYYY-MM-DD
- lunch_timeout must be a number of minutes; total_hours must be a decimal number
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

func buildPrompt(ocrText string) string {
	hint := ""
	if strings.TrimSpace(ocrText) != "" {
		hint = fmt.Sprintf("OCR text extracted from the same image, use it as a reference:\n%s\n\n", strings.TrimSpace(ocrText))
	}
	return fmt.Sprintf(timesheetScanPrompt, hint)
}

// Extractor drives a vision Provider and turns its response into a
// ScanResult.
type Extractor struct {
	provider Provider
}

// NewExtractor creates an Extractor backed by the given provider.
func NewExtractor(provider Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract sends the normalized image and optional OCR hint to the model
// and parses the response. A provider failure returns a *ServiceError so
// the caller can retry; an unparseable response returns a ScanResult with
// failure status and a nil error.
func (e *Extractor) Extract(ctx context.Context, pngData []byte, ocrText string) (*ScanResult, error) {
	text, err := e.provider.GenerateContent(ctx, pngData, buildPrompt(ocrText))
	if err != nil {
		return nil, err
	}

	records, err := parseScanJSON(text)
	if err != nil {
		return &ScanResult{
			Status:  StatusFailure,
			Message: fmt.Sprintf("could not parse model response: %v", err),
		}, nil
	}
	if len(records) == 0 {
		return &ScanResult{
			Status:  StatusPartial,
			Message: "no timesheet records found in model response",
		}, nil
	}

	return &ScanResult{Records: records, Status: StatusSuccess, Message: "extraction completed"}, nil
}

// Close releases the underlying provider.
func (e *Extractor) Close() error {
	return e.provider.Close()
}
