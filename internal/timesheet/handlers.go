package timesheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"timesheet-tracker/internal/vision"
)

// maxFormSize bounds multipart uploads (high-resolution phone photos).
const maxFormSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set.
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// uploadedFile reads the optional "file" part of a multipart form and
// determines its content type, falling back to the filename extension.
func uploadedFile(r *http.Request) ([]byte, string, error) {
	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("reading form file: %w", err)
	}
	defer f.Close()

	if header.Size > maxFormSize {
		return nil, "", fmt.Errorf("file is too large, maximum size is 50MB")
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading file data: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return data, strings.ToLower(strings.TrimSpace(contentType)), nil
}

// dayFieldPattern matches bracketed weekly form keys: [YYYY-MM-DD][field].
var dayFieldPattern = regexp.MustCompile(`^\[([^\]]+)\]\[([^\]]+)\]$`)

// parseAssertedInputs extracts user-asserted field values from the form:
// either flat fields (single/daily entry) or bracketed per-day fields
// (weekly sheet). Each field is independently optional.
func parseAssertedInputs(form map[string][]string) ([]UserInput, error) {
	byDate := make(map[string]*UserInput)
	var order []string

	for key, values := range form {
		m := dayFieldPattern.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		date, field := m[1], m[2]
		input := byDate[date]
		if input == nil {
			input = &UserInput{Date: date}
			byDate[date] = input
			order = append(order, date)
		}
		if err := setAssertedField(input, field, values[0]); err != nil {
			return nil, err
		}
	}

	flat := &UserInput{}
	for _, field := range []string{"date", "time_in", "time_out", "lunch_timeout", "total_hours", "is_daily_entry"} {
		if values, ok := form[field]; ok && len(values) > 0 && values[0] != "" {
			if err := setAssertedField(flat, field, values[0]); err != nil {
				return nil, err
			}
		}
	}

	var inputs []UserInput
	sort.Strings(order)
	for _, date := range order {
		inputs = append(inputs, *byDate[date])
	}
	if !flat.Empty() {
		inputs = append(inputs, *flat)
	}
	return inputs, nil
}

func setAssertedField(input *UserInput, field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case "date":
		input.Date = value
	case "time_in":
		input.TimeIn = value
	case "time_out":
		input.TimeOut = value
	case "lunch_timeout":
		minutes, ok := ParseLunchMinutes(value)
		if !ok {
			return fmt.Errorf("invalid lunch_timeout %q", value)
		}
		input.LunchMinutes = &minutes
	case "total_hours":
		hours, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid total_hours %q", value)
		}
		input.TotalHours = &hours
	case "is_daily_entry":
		daily, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid is_daily_entry %q", value)
		}
		input.IsDailyEntry = &daily
	}
	return nil
}

// parseDayEntries extracts stored day entries from bracketed form keys.
func parseDayEntries(form map[string][]string) ([]DayEntry, error) {
	byDate := make(map[string]*DayEntry)
	var order []string

	for key, values := range form {
		m := dayFieldPattern.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		date, field := m[1], m[2]
		entry := byDate[date]
		if entry == nil {
			entry = &DayEntry{Date: date}
			byDate[date] = entry
			order = append(order, date)
		}
		value := strings.TrimSpace(values[0])
		switch field {
		case "time_in":
			entry.TimeIn = value
		case "time_out":
			entry.TimeOut = value
		case "lunch_timeout":
			minutes, ok := ParseLunchMinutes(value)
			if !ok {
				return nil, fmt.Errorf("invalid lunch_timeout %q for %s", value, date)
			}
			entry.LunchMinutes = minutes
		case "total_hours":
			hours, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid total_hours %q for %s", value, date)
			}
			entry.TotalHours = hours
		case "status":
			entry.Status = value
		}
	}

	var days []DayEntry
	sort.Strings(order)
	for _, date := range order {
		days = append(days, *byDate[date])
	}
	return days, nil
}

// requestUserID resolves the acting user from basic auth or the form.
func requestUserID(r *http.Request) string {
	if username, _, ok := r.BasicAuth(); ok && username != "" {
		return username
	}
	if id := r.FormValue("user_id"); id != "" {
		return id
	}
	return "anonymous"
}

// handleExtract runs the extraction-and-validation pipeline on an
// uploaded timesheet image with optional asserted field values.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	data, contentType, err := uploadedFile(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		jsonError(w, "No file was selected. Please choose a timesheet image to upload.", http.StatusBadRequest)
		return
	}

	asserted, err := parseAssertedInputs(r.MultipartForm.Value)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := s.service.ProcessUpload(r.Context(), requestUserID(r), Upload{Data: data, ContentType: contentType}, asserted)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, outcome)
}

// writePipelineError maps pipeline failures onto the error taxonomy:
// unreadable media is the client's problem, an unavailable extraction
// service is not.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var mediaErr *vision.UnsupportedMediaError
	var svcErr *vision.ServiceError
	switch {
	case errors.As(err, &mediaErr):
		jsonError(w, fmt.Sprintf("could not read this image: %v", mediaErr), http.StatusBadRequest)
	case errors.As(err, &svcErr):
		slog.Error("Extraction service unavailable", "error", err)
		jsonError(w, "extraction service is temporarily unavailable, please retry", http.StatusBadGateway)
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		// Client went away; nothing useful to write.
		slog.Info("Request cancelled", "error", err)
	default:
		slog.Error("Error processing upload", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleSaveTimesheet saves a weekly draft or submission from bracketed
// per-day form fields plus an optional image.
func (s *Server) handleSaveTimesheet(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	days, err := parseDayEntries(r.MultipartForm.Value)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(days) == 0 {
		jsonError(w, "No daily entries provided", http.StatusBadRequest)
		return
	}

	data, contentType, err := uploadedFile(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	draft := true
	if v := r.FormValue("draft"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			draft = parsed
		}
	}

	ts, err := s.service.SaveDraft(requestUserID(r), days, data, contentType, draft)
	if err != nil {
		var mediaErr *vision.UnsupportedMediaError
		if errors.As(err, &mediaErr) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error saving timesheet", "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, ts)
}

// handleValidateWeek validates a stored weekly timesheet against its
// image (or a newly uploaded one).
func (s *Server) handleValidateWeek(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Timesheet ID required", http.StatusBadRequest)
		return
	}

	// The image is optional; the request may carry no form at all.
	if err := r.ParseMultipartForm(maxFormSize); err != nil &&
		!errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingBoundary) {
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	var data []byte
	var contentType string
	if r.MultipartForm != nil {
		var err error
		data, contentType, err = uploadedFile(r)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	outcome, ts, err := s.service.ValidateWeek(r.Context(), id, data, contentType)
	if err != nil {
		var mediaErr *vision.UnsupportedMediaError
		var svcErr *vision.ServiceError
		switch {
		case errors.As(err, &mediaErr), errors.As(err, &svcErr):
			writePipelineError(w, r, err)
		case strings.Contains(err.Error(), "not found"):
			corsError(w, "Timesheet not found", http.StatusNotFound)
		default:
			slog.Error("Error validating timesheet", "id", id, "error", err)
			jsonError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":            outcome.Message,
		"image_data":         outcome.ImageData,
		"validation_results": outcome.Validation,
		"week_data":          ts,
	})
}

// handleApprove approves a validated timesheet.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Timesheet ID required", http.StatusBadRequest)
		return
	}
	ts, err := s.service.Approve(id)
	if err != nil {
		slog.Error("Error approving timesheet", "id", id, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, ts)
}

// handleReject rejects a timesheet.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Timesheet ID required", http.StatusBadRequest)
		return
	}
	ts, err := s.service.Reject(id)
	if err != nil {
		slog.Error("Error rejecting timesheet", "id", id, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, ts)
}

// handleListTimesheets returns all timesheets.
func (s *Server) handleListTimesheets(w http.ResponseWriter, r *http.Request) {
	timesheets, err := s.service.ListTimesheets()
	if err != nil {
		slog.Error("Error listing timesheets", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, timesheets)
}

// handleGetTimesheet returns a single timesheet.
func (s *Server) handleGetTimesheet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Timesheet ID required", http.StatusBadRequest)
		return
	}
	ts, err := s.service.GetTimesheet(id)
	if err != nil {
		corsError(w, "Timesheet not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, ts)
}

// handleDeleteTimesheet deletes a timesheet.
func (s *Server) handleDeleteTimesheet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Timesheet ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteTimesheet(id); err != nil {
		corsError(w, "Error deleting timesheet", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTimesheetImage returns the stored image for a timesheet.
func (s *Server) handleGetTimesheetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Timesheet ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetTimesheetImage(id)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleListAudits returns all audit logs.
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	audits, err := s.service.ListAudits()
	if err != nil {
		slog.Error("Error listing audit logs", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if audits == nil {
		audits = []*AuditLog{}
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, audits)
}

// handleGetAudit returns a single audit log.
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Audit ID required", http.StatusBadRequest)
		return
	}
	audit, err := s.service.GetAudit(id)
	if err != nil {
		corsError(w, "Audit log not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, audit)
}

// handleExport streams an XLSX report of all timesheets.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	timesheets, err := s.service.ListTimesheets()
	if err != nil {
		slog.Error("Error listing timesheets for export", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="timesheets.xlsx"`)
	if err := WriteXLSX(w, timesheets); err != nil {
		slog.Error("Error writing export", "error", err)
	}
}
