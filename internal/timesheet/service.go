package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"timesheet-tracker/internal/vision"
)

// IDGenerator generates unique IDs for timesheets and audit logs.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service ties the pipeline to the approval bookkeeping: weekly timesheet
// documents, status transitions and audit logs.
type Service struct {
	db          DB
	storage     Storage
	pipeline    *Pipeline
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with default ID generator and time source.
func NewService(db DB, storage Storage, pipeline *Pipeline) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		pipeline:    pipeline,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, storage Storage, pipeline *Pipeline, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		pipeline:    pipeline,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessUpload runs the extraction-and-validation pipeline for an ad-hoc
// upload with optional asserted values, keeps the normalized image and
// writes an audit log.
func (s *Service) ProcessUpload(ctx context.Context, userID string, upload Upload, asserted []UserInput) (*Outcome, error) {
	outcome, err := s.pipeline.Process(ctx, upload, asserted)
	if err != nil {
		return nil, err
	}

	id := s.idGenerator.Generate()
	imagePath, err := s.storage.Save(id+".png", outcome.PNG)
	if err != nil {
		// The validated outcome still stands; the audit just loses its
		// image reference.
		slog.Warn("Failed to store normalized image", "error", err)
		imagePath = ""
	}

	audit := &AuditLog{
		ID:        id,
		UserID:    userID,
		Timestamp: s.timeSource.Now(),
		Extraction: &Extraction{
			Records: outcome.ImageData.Data.Records,
			Status:  outcome.ImageData.Status,
			Message: outcome.ImageData.Message,
			Flags:   outcome.ImageData.Flags,
		},
		Report:    outcome.Validation,
		ImagePath: imagePath,
		Note:      "upload validation",
	}
	if err := s.db.SaveAudit(audit); err != nil {
		return nil, fmt.Errorf("saving audit log: %w", err)
	}
	return outcome, nil
}

// SaveDraft creates or updates the weekly timesheet document covering the
// given day entries. Existing days for the same week are merged by date.
// An optional image replaces the stored one.
func (s *Service) SaveDraft(userID string, days []DayEntry, imageData []byte, contentType string, draft bool) (*Timesheet, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one day entry is required")
	}

	dates := make([]string, 0, len(days))
	for _, day := range days {
		d, ok := NormalizeDate(day.Date)
		if !ok {
			return nil, fmt.Errorf("invalid day date %q", day.Date)
		}
		dates = append(dates, d)
	}

	weekStart, weekEnd, err := weekBounds(dates)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	ts, err := s.db.FindTimesheetByWeek(userID, weekStart)
	if err != nil {
		ts = &Timesheet{
			ID:        s.idGenerator.Generate(),
			UserID:    userID,
			WeekStart: weekStart,
			WeekEnd:   weekEnd,
			Status:    StatusSubmitted,
			CreatedAt: now,
		}
	}

	byDate := make(map[string]DayEntry, len(ts.Days))
	for _, day := range ts.Days {
		byDate[day.Date] = day
	}
	for i, day := range days {
		day.Date = dates[i]
		if day.Status == "" {
			day.Status = DayStatusNotApproved
		}
		byDate[day.Date] = day
	}
	ts.Days = fillWeek(weekStart, weekEnd, byDate)
	ts.IsDraft = draft
	ts.IsValidated = false
	ts.Validation = nil
	ts.UpdatedAt = now

	if len(imageData) > 0 {
		pngData, err := vision.Preprocess(imageData, contentType)
		if err != nil {
			return nil, err
		}
		path, err := s.storage.Save(ts.ID+".png", pngData)
		if err != nil {
			return nil, fmt.Errorf("saving timesheet image: %w", err)
		}
		ts.ImagePath = path
		ts.ContentType = "image/png"
	}

	if err := s.db.SaveTimesheet(ts); err != nil {
		return nil, fmt.Errorf("saving timesheet: %w", err)
	}
	return ts, nil
}

// ValidateWeek runs the pipeline against a stored weekly timesheet,
// comparing the extracted records to the stored days (date-aligned). A
// newly provided image replaces the stored one; with none, the stored
// image is used. Day statuses and the validated flag are updated from the
// report, and an audit log is written.
func (s *Service) ValidateWeek(ctx context.Context, id string, imageData []byte, contentType string) (*Outcome, *Timesheet, error) {
	ts, err := s.db.GetTimesheet(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting timesheet: %w", err)
	}

	if len(imageData) == 0 {
		if ts.ImagePath == "" {
			return nil, nil, fmt.Errorf("no image available for validation and none provided")
		}
		imageData, err = s.storage.Get(ts.ImagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading stored image: %w", err)
		}
		contentType = "image/png"
	}

	asserted := make([]UserInput, 0, len(ts.Days))
	for i := range ts.Days {
		day := &ts.Days[i]
		if day.Status == DayStatusMissing {
			continue
		}
		lunch := day.LunchMinutes
		hours := day.TotalHours
		asserted = append(asserted, UserInput{
			Date:         day.Date,
			TimeIn:       day.TimeIn,
			TimeOut:      day.TimeOut,
			LunchMinutes: &lunch,
			TotalHours:   &hours,
		})
	}

	outcome, err := s.pipeline.Process(ctx, Upload{Data: imageData, ContentType: contentType}, asserted)
	if err != nil {
		return nil, nil, err
	}

	now := s.timeSource.Now()
	auditID := s.idGenerator.Generate()
	imagePath, err := s.storage.Save(auditID+".png", outcome.PNG)
	if err != nil {
		slog.Warn("Failed to store normalized image", "error", err)
		imagePath = ""
	} else if ts.ImagePath != "" && ts.ImagePath != imagePath {
		if err := s.storage.Delete(ts.ImagePath); err != nil {
			slog.Warn("Failed to delete old image", "path", ts.ImagePath, "error", err)
		}
	}
	if imagePath != "" {
		ts.ImagePath = imagePath
		ts.ContentType = "image/png"
	}

	applyDayStatuses(ts, outcome)
	ts.IsDraft = false
	ts.IsValidated = outcome.Validation.Valid
	ts.Validation = outcome.Validation
	if ts.Status != StatusApproved {
		ts.Status = StatusSubmitted
	}
	ts.UpdatedAt = now

	if err := s.db.SaveTimesheet(ts); err != nil {
		return nil, nil, fmt.Errorf("saving timesheet: %w", err)
	}

	audit := &AuditLog{
		ID:        auditID,
		UserID:    ts.UserID,
		Timestamp: now,
		Extraction: &Extraction{
			Records: outcome.ImageData.Data.Records,
			Status:  outcome.ImageData.Status,
			Message: outcome.ImageData.Message,
			Flags:   outcome.ImageData.Flags,
		},
		Report:      outcome.Validation,
		TimesheetID: ts.ID,
		ImagePath:   imagePath,
		Note:        "weekly timesheet validation",
	}
	if err := s.db.SaveAudit(audit); err != nil {
		return nil, nil, fmt.Errorf("saving audit log: %w", err)
	}

	return outcome, ts, nil
}

// applyDayStatuses marks each stored day approved, not approved, or
// missing based on the validation report.
func applyDayStatuses(ts *Timesheet, outcome *Outcome) {
	mismatched := make(map[int]bool)
	for _, fc := range outcome.Validation.Results {
		if !fc.Match && fc.RecordIndex >= 0 {
			mismatched[fc.RecordIndex] = true
		}
	}
	recordsByDate := make(map[string]Record)
	for _, rec := range outcome.ImageData.Data.Records {
		if rec.Date != "" {
			recordsByDate[rec.Date] = rec
		}
	}
	for i := range ts.Days {
		day := &ts.Days[i]
		if day.Status == DayStatusMissing {
			continue
		}
		rec, ok := recordsByDate[day.Date]
		switch {
		case !ok:
			day.Status = DayStatusMissing
		case mismatched[rec.Index]:
			day.Status = DayStatusNotApproved
		default:
			day.Status = DayStatusApproved
		}
	}
}

// Approve transitions a validated timesheet to approved. Only sheets that
// passed validation are eligible.
func (s *Service) Approve(id string) (*Timesheet, error) {
	ts, err := s.db.GetTimesheet(id)
	if err != nil {
		return nil, fmt.Errorf("getting timesheet: %w", err)
	}
	if ts.Status == StatusApproved {
		return nil, fmt.Errorf("timesheet %s is already approved", id)
	}
	if ts.IsDraft {
		return nil, fmt.Errorf("timesheet %s is still a draft", id)
	}
	if !ts.IsValidated {
		return nil, fmt.Errorf("timesheet %s has not passed validation", id)
	}

	ts.Status = StatusApproved
	ts.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveTimesheet(ts); err != nil {
		return nil, fmt.Errorf("saving timesheet: %w", err)
	}
	return ts, nil
}

// Reject transitions a timesheet to rejected.
func (s *Service) Reject(id string) (*Timesheet, error) {
	ts, err := s.db.GetTimesheet(id)
	if err != nil {
		return nil, fmt.Errorf("getting timesheet: %w", err)
	}
	if ts.Status == StatusRejected {
		return nil, fmt.Errorf("timesheet %s is already rejected", id)
	}

	ts.Status = StatusRejected
	ts.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveTimesheet(ts); err != nil {
		return nil, fmt.Errorf("saving timesheet: %w", err)
	}
	return ts, nil
}

// GetTimesheet retrieves a timesheet by ID.
func (s *Service) GetTimesheet(id string) (*Timesheet, error) {
	ts, err := s.db.GetTimesheet(id)
	if err != nil {
		return nil, fmt.Errorf("getting timesheet: %w", err)
	}
	return ts, nil
}

// ListTimesheets returns all timesheets.
func (s *Service) ListTimesheets() ([]*Timesheet, error) {
	timesheets, err := s.db.ListTimesheets()
	if err != nil {
		return nil, fmt.Errorf("listing timesheets: %w", err)
	}
	return timesheets, nil
}

// DeleteTimesheet removes a timesheet and its stored image.
func (s *Service) DeleteTimesheet(id string) error {
	ts, err := s.db.GetTimesheet(id)
	if err != nil {
		return fmt.Errorf("getting timesheet for deletion: %w", err)
	}
	if ts.ImagePath != "" {
		if err := s.storage.Delete(ts.ImagePath); err != nil {
			slog.Warn("Failed to delete image", "path", ts.ImagePath, "error", err)
		}
	}
	if err := s.db.DeleteTimesheet(id); err != nil {
		return fmt.Errorf("deleting timesheet: %w", err)
	}
	return nil
}

// GetTimesheetImage retrieves the stored image for a timesheet.
func (s *Service) GetTimesheetImage(id string) ([]byte, string, error) {
	ts, err := s.db.GetTimesheet(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting timesheet: %w", err)
	}
	if ts.ImagePath == "" {
		return nil, "", fmt.Errorf("timesheet %s has no stored image", id)
	}
	data, err := s.storage.Get(ts.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting timesheet image: %w", err)
	}
	return data, ts.ContentType, nil
}

// ListAudits returns all audit logs.
func (s *Service) ListAudits() ([]*AuditLog, error) {
	audits, err := s.db.ListAudits()
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	return audits, nil
}

// GetAudit retrieves an audit log by ID.
func (s *Service) GetAudit(id string) (*AuditLog, error) {
	audit, err := s.db.GetAudit(id)
	if err != nil {
		return nil, fmt.Errorf("getting audit log: %w", err)
	}
	return audit, nil
}

// weekBounds computes the Monday and Friday of the week covering the
// earliest date. Dates that fall on a weekend push the week to the next
// Monday.
func weekBounds(dates []string) (string, string, error) {
	if len(dates) == 0 {
		return "", "", fmt.Errorf("no day dates provided")
	}

	parsed := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return "", "", fmt.Errorf("invalid date %q: %w", d, err)
		}
		parsed = append(parsed, t)
	}

	base := parsed[0]
	weekend := false
	for _, t := range parsed {
		if t.Before(base) {
			base = t
		}
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			weekend = true
		}
	}

	// time.Weekday has Sunday=0; shift so Monday is the week anchor.
	offset := (int(base.Weekday()) + 6) % 7
	monday := base.AddDate(0, 0, -offset)
	if weekend {
		monday = monday.AddDate(0, 0, 7)
	}
	friday := monday.AddDate(0, 0, 4)

	return monday.Format("2006-01-02"), friday.Format("2006-01-02"), nil
}

// fillWeek builds the ordered Monday-to-Friday day list, inserting
// placeholder entries for days without data.
func fillWeek(weekStart, weekEnd string, byDate map[string]DayEntry) []DayEntry {
	start, _ := time.Parse("2006-01-02", weekStart)
	end, _ := time.Parse("2006-01-02", weekEnd)

	var days []DayEntry
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		if entry, ok := byDate[key]; ok {
			days = append(days, entry)
			continue
		}
		days = append(days, DayEntry{Date: key, Status: DayStatusMissing})
	}

	// Entries outside the computed week (weekend submissions) keep their
	// place after the filled week.
	extra := make([]string, 0)
	for key := range byDate {
		if key < weekStart || key > weekEnd {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		days = append(days, byDate[key])
	}
	return days
}
