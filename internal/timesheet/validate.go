package timesheet

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Alignment selects how extracted records are matched up with asserted
// inputs: by calendar date (weekly sheets) or by position (single-record
// and daily entries).
type Alignment int

const (
	AlignByDate Alignment = iota
	AlignPositional
)

// Default comparison tolerances.
const (
	DefaultHoursTolerance        = 0.01
	DefaultLunchToleranceMinutes = 1
)

// Engine recomputes derived quantities, checks internal consistency and
// reconciles extracted records against user-asserted values. It holds no
// state across calls; Validate is a pure function of its inputs and the
// explicit tolerance configuration.
type Engine struct {
	HoursTolerance        float64
	LunchToleranceMinutes int
	Alignment             Alignment
}

// NewEngine creates an Engine, filling zero tolerances with the defaults.
func NewEngine(hoursTolerance float64, lunchToleranceMinutes int, alignment Alignment) Engine {
	if hoursTolerance <= 0 {
		hoursTolerance = DefaultHoursTolerance
	}
	if lunchToleranceMinutes <= 0 {
		lunchToleranceMinutes = DefaultLunchToleranceMinutes
	}
	return Engine{
		HoursTolerance:        hoursTolerance,
		LunchToleranceMinutes: lunchToleranceMinutes,
		Alignment:             alignment,
	}
}

type alignedPair struct {
	record *Record
	input  *UserInput
}

// Validate produces a structured report for the given records and asserted
// inputs. Each record is checked for internal consistency, its total hours
// are derived from the time pair when absent, and every asserted field is
// compared against the extracted or derived value.
func (e Engine) Validate(records []Record, asserted []UserInput) *ValidationReport {
	if len(records) == 0 {
		return &ValidationReport{
			Valid:   false,
			Message: "no records extracted from image",
			Results: []FieldComparison{},
		}
	}

	pairs, findings := e.align(records, asserted)
	results := make([]FieldComparison, 0, len(records))
	for _, pair := range pairs {
		if pair.record == nil {
			results = append(results, FieldComparison{
				RecordIndex:   -1,
				Field:         "date",
				AssertedValue: pair.input.Date,
				Match:         false,
				Detail:        fmt.Sprintf("no extracted record for asserted date %q", pair.input.Date),
			})
			continue
		}

		rec := *pair.record
		effective, entries := e.checkRecord(rec)
		results = append(results, entries...)

		if pair.input != nil && !pair.input.Empty() {
			results = append(results, e.compare(rec, effective, *pair.input)...)
		}
	}

	results = append(results, findings...)

	valid, message := summarize(results)
	return &ValidationReport{Valid: valid, Message: message, Results: results}
}

// DeriveTotalHours computes total hours from a time pair and lunch
// duration: (time_out - time_in) - lunch/60, clamped to zero when lunch
// consumes the whole shift. The boolean is false when the pair is absent,
// unparseable, or out of order without an overnight flag.
func DeriveTotalHours(rec Record) (float64, bool) {
	shift, ok := shiftMinutes(rec)
	if !ok {
		return 0, false
	}
	net := float64(shift-rec.LunchMinutes) / 60
	if net < 0 {
		net = 0
	}
	return net, true
}

// shiftMinutes returns the gross shift length in minutes, honoring the
// overnight flag for wrap-around pairs.
func shiftMinutes(rec Record) (int, bool) {
	if rec.TimeIn == "" || rec.TimeOut == "" {
		return 0, false
	}
	in, okIn := clockMinutes(rec.TimeIn)
	out, okOut := clockMinutes(rec.TimeOut)
	if !okIn || !okOut {
		return 0, false
	}
	diff := out - in
	if diff <= 0 {
		if !rec.Overnight {
			return 0, false
		}
		diff += 24 * 60
	}
	return diff, true
}

// checkRecord verifies internal consistency and returns the effective
// total hours for cross-checking: the extracted value when present,
// otherwise the derived one.
func (e Engine) checkRecord(rec Record) (*float64, []FieldComparison) {
	var entries []FieldComparison

	if rec.LunchMinutes < 0 {
		entries = append(entries, FieldComparison{
			RecordIndex:    rec.Index,
			Field:          "lunch_timeout",
			ExtractedValue: fmt.Sprintf("%dm", rec.LunchMinutes),
			Match:          false,
			Detail:         "lunch duration must not be negative",
		})
	}
	if rec.TotalHours != nil && *rec.TotalHours < 0 {
		entries = append(entries, FieldComparison{
			RecordIndex:    rec.Index,
			Field:          "total_hours",
			ExtractedValue: formatHours(*rec.TotalHours),
			Match:          false,
			Detail:         "total hours must not be negative",
		})
	}

	shift, havePair := 0, false
	if rec.TimeIn != "" && rec.TimeOut != "" {
		shift, havePair = shiftMinutes(rec)
		if !havePair {
			entries = append(entries, FieldComparison{
				RecordIndex:    rec.Index,
				Field:          "time_order",
				ExtractedValue: fmt.Sprintf("%s-%s", rec.TimeIn, rec.TimeOut),
				Match:          false,
				Detail:         fmt.Sprintf("InvalidTimeOrder: time_out %s is not after time_in %s and no overnight flag is set", rec.TimeOut, rec.TimeIn),
			})
		}
	}

	effective := rec.TotalHours
	if havePair {
		if rec.LunchMinutes > shift {
			entries = append(entries, FieldComparison{
				RecordIndex:    rec.Index,
				Field:          "lunch_timeout",
				ExtractedValue: fmt.Sprintf("%dm", rec.LunchMinutes),
				Match:          false,
				Detail:         fmt.Sprintf("lunch duration %dm exceeds shift duration %dm", rec.LunchMinutes, shift),
			})
		}
		derived, _ := DeriveTotalHours(rec)
		if rec.TotalHours == nil {
			effective = &derived
		} else if diff := math.Abs(*rec.TotalHours - derived); diff > e.HoursTolerance {
			entries = append(entries, FieldComparison{
				RecordIndex:    rec.Index,
				Field:          "total_hours",
				ExtractedValue: formatHours(*rec.TotalHours),
				Match:          false,
				Detail: fmt.Sprintf("extracted %s does not agree with %s computed from the time pair minus lunch, diff %s exceeds tolerance",
					formatHours(*rec.TotalHours), formatHours(derived), formatHours(diff)),
			})
		}
	}

	return effective, entries
}

// compare checks every asserted field against the extracted (or derived)
// value, producing one entry per compared field.
func (e Engine) compare(rec Record, effective *float64, input UserInput) []FieldComparison {
	var entries []FieldComparison

	if input.Date != "" {
		assertedDate, ok := NormalizeDate(input.Date)
		if !ok {
			assertedDate = strings.TrimSpace(input.Date)
		}
		entry := FieldComparison{
			RecordIndex:    rec.Index,
			Field:          "date",
			ExtractedValue: rec.Date,
			AssertedValue:  assertedDate,
			Match:          rec.Date == assertedDate,
		}
		if !entry.Match {
			entry.Detail = fmt.Sprintf("extracted date %q, asserted %q", rec.Date, assertedDate)
		}
		entries = append(entries, entry)
	}

	entries = appendClockComparison(entries, rec.Index, "time_in", rec.TimeIn, input.TimeIn)
	entries = appendClockComparison(entries, rec.Index, "time_out", rec.TimeOut, input.TimeOut)

	if input.LunchMinutes != nil {
		diff := rec.LunchMinutes - *input.LunchMinutes
		if diff < 0 {
			diff = -diff
		}
		entry := FieldComparison{
			RecordIndex:    rec.Index,
			Field:          "lunch_timeout",
			ExtractedValue: fmt.Sprintf("%dm", rec.LunchMinutes),
			AssertedValue:  fmt.Sprintf("%dm", *input.LunchMinutes),
			Match:          diff <= e.LunchToleranceMinutes,
		}
		if !entry.Match {
			entry.Detail = fmt.Sprintf("extracted %dm, asserted %dm, diff %dm exceeds tolerance", rec.LunchMinutes, *input.LunchMinutes, diff)
		}
		entries = append(entries, entry)
	}

	if input.TotalHours != nil {
		entry := FieldComparison{
			RecordIndex:   rec.Index,
			Field:         "total_hours",
			AssertedValue: formatHours(*input.TotalHours),
		}
		if effective == nil {
			entry.Detail = "no extracted or derived total_hours to compare"
		} else {
			entry.ExtractedValue = formatHours(*effective)
			diff := math.Abs(*effective - *input.TotalHours)
			entry.Match = diff <= e.HoursTolerance
			if !entry.Match {
				entry.Detail = fmt.Sprintf("extracted %s, asserted %s, diff %s exceeds tolerance",
					formatHours(*effective), formatHours(*input.TotalHours), formatHours(diff))
			}
		}
		entries = append(entries, entry)
	}

	if input.IsDailyEntry != nil {
		entry := FieldComparison{
			RecordIndex:    rec.Index,
			Field:          "is_daily_entry",
			ExtractedValue: fmt.Sprintf("%t", rec.IsDailyEntry),
			AssertedValue:  fmt.Sprintf("%t", *input.IsDailyEntry),
			Match:          rec.IsDailyEntry == *input.IsDailyEntry,
		}
		if !entry.Match {
			entry.Detail = fmt.Sprintf("extracted is_daily_entry=%t, asserted %t", rec.IsDailyEntry, *input.IsDailyEntry)
		}
		entries = append(entries, entry)
	}

	return entries
}

func appendClockComparison(entries []FieldComparison, index int, field, extracted, asserted string) []FieldComparison {
	if asserted == "" {
		return entries
	}
	normalized, ok := NormalizeClock(asserted)
	if !ok {
		normalized = strings.TrimSpace(asserted)
	}
	entry := FieldComparison{
		RecordIndex:    index,
		Field:          field,
		ExtractedValue: extracted,
		AssertedValue:  normalized,
		Match:          extracted == normalized,
	}
	if !entry.Match {
		entry.Detail = fmt.Sprintf("extracted %s %q, asserted %q", field, extracted, normalized)
	}
	return append(entries, entry)
}

// align pairs records with asserted inputs. Date alignment requires every
// asserted entry to carry a parseable date; otherwise it falls back to
// positional pairing. When two asserted entries normalize to the same
// date the first wins and the rest are reported as findings.
func (e Engine) align(records []Record, asserted []UserInput) ([]alignedPair, []FieldComparison) {
	if e.Alignment == AlignByDate && len(asserted) > 0 {
		byDate := make(map[string]*UserInput, len(asserted))
		var findings []FieldComparison
		allDated := true
		for i := range asserted {
			d, ok := NormalizeDate(asserted[i].Date)
			if !ok {
				allDated = false
				break
			}
			if byDate[d] != nil {
				findings = append(findings, FieldComparison{
					RecordIndex:   -1,
					Field:         "date",
					AssertedValue: d,
					Match:         false,
					Detail:        fmt.Sprintf("multiple asserted entries for date %q; compared the first", d),
				})
				continue
			}
			byDate[d] = &asserted[i]
		}
		if allDated {
			pairs := make([]alignedPair, 0, len(records))
			claimed := make(map[string]bool, len(records))
			for i := range records {
				input := byDate[records[i].Date]
				if input != nil {
					claimed[records[i].Date] = true
				}
				pairs = append(pairs, alignedPair{record: &records[i], input: input})
			}
			for i := range asserted {
				d, _ := NormalizeDate(asserted[i].Date)
				if claimed[d] || byDate[d] != &asserted[i] {
					continue
				}
				pairs = append(pairs, alignedPair{input: &asserted[i]})
			}
			return pairs, findings
		}
	}

	pairs := make([]alignedPair, 0, len(records))
	for i := range records {
		var input *UserInput
		if i < len(asserted) {
			input = &asserted[i]
		}
		pairs = append(pairs, alignedPair{record: &records[i], input: input})
	}
	for i := len(records); i < len(asserted); i++ {
		pairs = append(pairs, alignedPair{input: &asserted[i]})
	}
	return pairs, nil
}

// summarize computes the aggregate verdict and a message enumerating the
// affected records and fields.
func summarize(results []FieldComparison) (bool, string) {
	mismatched := make(map[int]map[string]bool)
	for _, fc := range results {
		if fc.Match {
			continue
		}
		if mismatched[fc.RecordIndex] == nil {
			mismatched[fc.RecordIndex] = make(map[string]bool)
		}
		mismatched[fc.RecordIndex][fc.Field] = true
	}
	if len(mismatched) == 0 {
		return true, "all records validated successfully"
	}

	indices := make([]int, 0, len(mismatched))
	for idx := range mismatched {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	parts := make([]string, 0, len(indices))
	for _, idx := range indices {
		fields := make([]string, 0, len(mismatched[idx]))
		for f := range mismatched[idx] {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		if idx == -1 {
			parts = append(parts, fmt.Sprintf("unmatched asserted entries (%s)", strings.Join(fields, ", ")))
			continue
		}
		parts = append(parts, fmt.Sprintf("record %d (%s)", idx, strings.Join(fields, ", ")))
	}
	return false, "discrepancies found: " + strings.Join(parts, "; ")
}

func formatHours(h float64) string {
	s := fmt.Sprintf("%.2f", h)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + "h"
}
