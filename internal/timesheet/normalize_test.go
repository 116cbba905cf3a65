package timesheet

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"timesheet-tracker/internal/vision"
)

var _ = Describe("Normalize", func() {
	var (
		raw     []vision.RawRecord
		records []Record
		flags   []string
	)

	JustBeforeEach(func() {
		records, flags = Normalize(raw)
	})

	When("records arrive in mixed formats", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "07/03/2023", TimeIn: "9:00 AM", TimeOut: "5:30 PM", LunchTimeout: "0.5", TotalHours: "8"},
			}
		})

		It("should produce no flags", func() {
			Expect(flags).To(BeEmpty())
		})

		It("should normalize the date to ISO form", func() {
			Expect(records[0].Date).To(Equal("2023-07-03"))
		})

		It("should normalize clock times to 24-hour form", func() {
			Expect(records[0].TimeIn).To(Equal("09:00"))
			Expect(records[0].TimeOut).To(Equal("17:30"))
		})

		It("should read a small lunch number as hours", func() {
			Expect(records[0].LunchMinutes).To(Equal(30))
		})

		It("should parse total hours", func() {
			Expect(*records[0].TotalHours).To(Equal(8.0))
		})
	})

	When("the model echoes the same row twice", func() {
		BeforeEach(func() {
			row := vision.RawRecord{Date: "2023-07-03", TimeIn: "09:00", TimeOut: "17:00"}
			raw = []vision.RawRecord{row, row}
		})

		It("should keep a single record", func() {
			Expect(records).To(HaveLen(1))
		})

		It("should flag the dropped duplicate", func() {
			Expect(flags).To(ContainElement(ContainSubstring("duplicate record")))
		})
	})

	When("a daily entry produces multiple records", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "2023-07-03", TimeIn: "09:00", IsDailyEntry: true},
				{Date: "2023-07-04", TimeIn: "08:00", IsDailyEntry: true},
			}
		})

		It("should keep only the first record", func() {
			Expect(records).To(HaveLen(1))
			Expect(records[0].Date).To(Equal("2023-07-03"))
		})

		It("should flag the extra rows", func() {
			Expect(flags).To(ContainElement(ContainSubstring("daily entry produced 2 records")))
		})
	})

	When("only a later record carries the daily entry flag", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "2023-07-03", TimeIn: "09:00"},
				{Date: "2023-07-04", TimeIn: "08:00", IsDailyEntry: true},
			}
		})

		It("should still keep only the first record", func() {
			Expect(records).To(HaveLen(1))
			Expect(records[0].Date).To(Equal("2023-07-03"))
		})

		It("should flag the extra rows", func() {
			Expect(flags).To(ContainElement(ContainSubstring("daily entry produced 2 records")))
		})
	})

	When("records arrive out of date order", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "2023-07-05", TimeIn: "09:00"},
				{Date: "2023-07-03", TimeIn: "09:00"},
				{Date: "2023-07-04", TimeIn: "09:00"},
			}
		})

		It("should order records by ascending date", func() {
			Expect(records[0].Date).To(Equal("2023-07-03"))
			Expect(records[1].Date).To(Equal("2023-07-04"))
			Expect(records[2].Date).To(Equal("2023-07-05"))
		})

		It("should assign sequential indexes", func() {
			for i, rec := range records {
				Expect(rec.Index).To(Equal(i))
			}
		})
	})

	When("an undated record sits between dated records", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "2023-07-05", TimeIn: "09:00"},
				{Date: "someday", TimeIn: "08:00"},
				{Date: "2023-07-03", TimeIn: "07:00"},
			}
		})

		It("should keep the dated records ascending", func() {
			Expect(records[0].Date).To(Equal("2023-07-03"))
			Expect(records[1].Date).To(Equal("2023-07-05"))
		})

		It("should place the undated record last", func() {
			Expect(records[2].Date).To(BeEmpty())
			Expect(records[2].TimeIn).To(Equal("08:00"))
		})
	})

	When("a record has no fields at all", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{},
				{Date: "2023-07-03"},
			}
		})

		It("should drop the empty record silently", func() {
			Expect(records).To(HaveLen(1))
			Expect(flags).To(BeEmpty())
		})
	})

	When("fields fail to parse", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "someday", TimeIn: "morning", TimeOut: "17:00"},
			}
		})

		It("should keep the record with the fields that did parse", func() {
			Expect(records).To(HaveLen(1))
			Expect(records[0].Date).To(BeEmpty())
			Expect(records[0].TimeOut).To(Equal("17:00"))
		})

		It("should flag each unparseable field", func() {
			Expect(flags).To(ContainElement(ContainSubstring("unparseable date")))
			Expect(flags).To(ContainElement(ContainSubstring("unparseable time_in")))
		})
	})

	When("every field of a record fails coercion", func() {
		BeforeEach(func() {
			raw = []vision.RawRecord{
				{Date: "someday", TimeIn: "morning"},
			}
		})

		It("should drop the record", func() {
			Expect(records).To(BeEmpty())
		})

		It("should flag the drop", func() {
			Expect(flags).To(ContainElement(ContainSubstring("no usable fields after coercion")))
		})
	})
})
