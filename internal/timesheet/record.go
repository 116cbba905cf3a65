package timesheet

import (
	"time"

	"timesheet-tracker/internal/vision"
)

// Record is the canonical timesheet unit: one day's (or one shift's)
// work-time entry. String fields are normalized forms (YYYY-MM-DD dates,
// HH:MM 24-hour clock times); empty means absent. TotalHours is a pointer
// so absent can be told apart from zero and derived later.
type Record struct {
	Index        int      `json:"index"`
	Date         string   `json:"date,omitempty"`
	TimeIn       string   `json:"time_in,omitempty"`
	TimeOut      string   `json:"time_out,omitempty"`
	LunchMinutes int      `json:"lunch_timeout"`
	TotalHours   *float64 `json:"total_hours,omitempty"`
	IsDailyEntry bool     `json:"is_daily_entry,omitempty"`
	Overnight    bool     `json:"overnight,omitempty"`
}

// fieldsEqual reports whether two records carry identical field values,
// ignoring the assigned index. Used to drop duplicated rows.
func (r Record) fieldsEqual(other Record) bool {
	if r.Date != other.Date || r.TimeIn != other.TimeIn || r.TimeOut != other.TimeOut {
		return false
	}
	if r.LunchMinutes != other.LunchMinutes || r.IsDailyEntry != other.IsDailyEntry || r.Overnight != other.Overnight {
		return false
	}
	if (r.TotalHours == nil) != (other.TotalHours == nil) {
		return false
	}
	if r.TotalHours != nil && *r.TotalHours != *other.TotalHours {
		return false
	}
	return true
}

// empty reports whether the record lost all field values during coercion.
func (r Record) empty() bool {
	return r.Date == "" && r.TimeIn == "" && r.TimeOut == "" &&
		r.LunchMinutes == 0 && r.TotalHours == nil
}

// Extraction is the immutable result of one upload's extraction pass:
// normalized records plus a status tag and human-readable message. Flags
// record normalization discrepancies (dropped duplicates, extra rows on a
// daily entry).
type Extraction struct {
	Records []Record      `json:"records"`
	Status  vision.Status `json:"status"`
	Message string        `json:"message,omitempty"`
	Flags   []string      `json:"flags,omitempty"`
}

// UserInput holds the optional field values asserted by the uploader
// alongside the image. Each field is independently optional; the engine
// only compares fields that are present. Never mutated.
type UserInput struct {
	Date         string   `json:"date,omitempty"`
	TimeIn       string   `json:"time_in,omitempty"`
	TimeOut      string   `json:"time_out,omitempty"`
	LunchMinutes *int     `json:"lunch_timeout,omitempty"`
	TotalHours   *float64 `json:"total_hours,omitempty"`
	IsDailyEntry *bool    `json:"is_daily_entry,omitempty"`
}

// Empty reports whether no field was asserted.
func (u UserInput) Empty() bool {
	return u.Date == "" && u.TimeIn == "" && u.TimeOut == "" &&
		u.LunchMinutes == nil && u.TotalHours == nil && u.IsDailyEntry == nil
}

// FieldComparison is one compared field on one record: what was extracted,
// what was asserted, and whether they agree. Internal-consistency findings
// use the same shape with no asserted value.
type FieldComparison struct {
	RecordIndex    int    `json:"record_index"`
	Field          string `json:"field"`
	ExtractedValue string `json:"extracted_value,omitempty"`
	AssertedValue  string `json:"asserted_value,omitempty"`
	Match          bool   `json:"match"`
	Detail         string `json:"detail,omitempty"`
}

// ValidationReport is the structured validation outcome: one entry per
// compared field per record plus the aggregate verdict. Derived purely
// from the extraction and the asserted input.
type ValidationReport struct {
	Valid   bool              `json:"valid"`
	Message string            `json:"message"`
	Results []FieldComparison `json:"validation_results"`
}

// DayEntry is one stored day inside a weekly timesheet document.
type DayEntry struct {
	Date         string  `json:"date"`
	TimeIn       string  `json:"time_in,omitempty"`
	TimeOut      string  `json:"time_out,omitempty"`
	LunchMinutes int     `json:"lunch_timeout"`
	TotalHours   float64 `json:"total_hours"`
	Status       string  `json:"status"`
}

// Day entry statuses assigned during weekly validation.
const (
	DayStatusApproved    = "approved"
	DayStatusNotApproved = "not approved"
	DayStatusMissing     = "missing"
)

// Timesheet is a persisted weekly document with its approval bookkeeping.
type Timesheet struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	WeekStart   string            `json:"week_start"`
	WeekEnd     string            `json:"week_end"`
	Days        []DayEntry        `json:"days"`
	IsDraft     bool              `json:"is_draft"`
	IsValidated bool              `json:"is_validated"`
	Status      string            `json:"status"`
	Validation  *ValidationReport `json:"validation_results,omitempty"`
	ImagePath   string            `json:"image_path,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Timesheet approval statuses.
const (
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// AuditLog records one validation run for later review.
type AuditLog struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Extraction  *Extraction       `json:"extracted_data,omitempty"`
	Report      *ValidationReport `json:"comparison_results,omitempty"`
	TimesheetID string            `json:"timesheet_id,omitempty"`
	ImagePath   string            `json:"image_path,omitempty"`
	Note        string            `json:"note,omitempty"`
}
