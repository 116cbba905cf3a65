package timesheet

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes an XLSX workbook summarizing the given timesheets,
// one row per stored day, to w.
func WriteXLSX(w io.Writer, timesheets []*Timesheet) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Timesheets"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	headers := []string{
		"User",
		"Week Start",
		"Date",
		"Time In",
		"Time Out",
		"Lunch (min)",
		"Total Hours",
		"Day Status",
		"Timesheet Status",
		"Validated",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	sorted := make([]*Timesheet, len(timesheets))
	copy(sorted, timesheets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UserID != sorted[j].UserID {
			return sorted[i].UserID < sorted[j].UserID
		}
		return sorted[i].WeekStart < sorted[j].WeekStart
	})

	row := 2
	for _, ts := range sorted {
		for _, day := range ts.Days {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, ts.UserID)
			write(2, ts.WeekStart)
			write(3, day.Date)
			write(4, day.TimeIn)
			write(5, day.TimeOut)
			write(6, day.LunchMinutes)
			write(7, day.TotalHours)
			write(8, day.Status)
			write(9, ts.Status)
			write(10, ts.IsValidated)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 18)
	_ = f.SetColWidth(sheet, "B", "C", 12)
	_ = f.SetColWidth(sheet, "D", "G", 11)
	_ = f.SetColWidth(sheet, "H", "J", 16)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
