package timesheet

import (
	"fmt"
	"sort"
	"strconv"

	"timesheet-tracker/internal/vision"
)

// Normalize coerces heterogeneous model output into an ordered sequence of
// canonical records. It drops records with no fields at all, dedupes
// field-identical rows (the model often echoes a header row), keeps at
// most one record when the sheet is a daily entry, orders by ascending
// date where dates are known, and assigns each record a stable index.
// Returned flags describe anything that was dropped or could not be
// coerced.
func Normalize(raw []vision.RawRecord) ([]Record, []string) {
	var flags []string
	records := make([]Record, 0, len(raw))

	for i, rr := range raw {
		if rr.Empty() {
			continue
		}
		rec, recFlags := coerce(rr, i)
		flags = append(flags, recFlags...)
		if rec.empty() {
			flags = append(flags, fmt.Sprintf("record %d dropped: no usable fields after coercion", i))
			continue
		}
		records = append(records, rec)
	}

	// Drop rows that are field-for-field identical to an earlier row.
	deduped := records[:0]
	for _, rec := range records {
		duplicate := false
		for _, kept := range deduped {
			if rec.fieldsEqual(kept) {
				duplicate = true
				break
			}
		}
		if duplicate {
			flags = append(flags, fmt.Sprintf("duplicate record for date %q dropped", rec.Date))
			continue
		}
		deduped = append(deduped, rec)
	}
	records = deduped

	// A daily entry is a single full-day sheet; extra rows are a model
	// error. Keep the first and flag the rest.
	if len(records) > 1 {
		for _, rec := range records {
			if rec.IsDailyEntry {
				flags = append(flags, fmt.Sprintf("daily entry produced %d records; kept the first", len(records)))
				records = records[:1]
				break
			}
		}
	}

	// Dated records sort ascending; undated ones keep their extraction
	// order after them.
	sort.SliceStable(records, func(i, j int) bool {
		if records[j].Date == "" {
			return records[i].Date != ""
		}
		if records[i].Date == "" {
			return false
		}
		return records[i].Date < records[j].Date
	})

	for i := range records {
		records[i].Index = i
	}
	return records, flags
}

// coerce turns one raw record into canonical form, collecting a flag for
// every field that would not parse.
func coerce(rr vision.RawRecord, pos int) (Record, []string) {
	var flags []string
	rec := Record{
		IsDailyEntry: rr.IsDailyEntry,
		Overnight:    rr.Overnight,
	}

	if s := rr.Date.String(); s != "" {
		if d, ok := NormalizeDate(s); ok {
			rec.Date = d
		} else {
			flags = append(flags, fmt.Sprintf("record %d: unparseable date %q", pos, s))
		}
	}
	if s := rr.TimeIn.String(); s != "" {
		if t, ok := NormalizeClock(s); ok {
			rec.TimeIn = t
		} else {
			flags = append(flags, fmt.Sprintf("record %d: unparseable time_in %q", pos, s))
		}
	}
	if s := rr.TimeOut.String(); s != "" {
		if t, ok := NormalizeClock(s); ok {
			rec.TimeOut = t
		} else {
			flags = append(flags, fmt.Sprintf("record %d: unparseable time_out %q", pos, s))
		}
	}
	if s := rr.LunchTimeout.String(); s != "" {
		if minutes, ok := ParseLunchMinutes(s); ok && minutes >= 0 {
			rec.LunchMinutes = minutes
		} else {
			flags = append(flags, fmt.Sprintf("record %d: unparseable lunch_timeout %q", pos, s))
		}
	}
	if s := rr.TotalHours.String(); s != "" {
		if hours, err := strconv.ParseFloat(s, 64); err == nil && hours >= 0 {
			rec.TotalHours = &hours
		} else {
			flags = append(flags, fmt.Sprintf("record %d: unparseable total_hours %q", pos, s))
		}
	}
	return rec, flags
}
