package timesheet

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// multipartUpload builds a multipart body with an optional file part and
// extra form fields.
func multipartUpload(filename string, fileData []byte, fields map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if fileData != nil {
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(fileData)
		Expect(err).NotTo(HaveOccurred())
	}
	for key, value := range fields {
		Expect(writer.WriteField(key, value)).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).NotTo(HaveOccurred())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		service     *Service
		server      *Server
		basicAuth   BasicAuth
		managerAuth BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		pipeline := NewPipeline(extractor, nil, NewEngine(0, 0, AlignByDate), 0, time.Millisecond)
		service = NewService(db, storage, pipeline)
		server = NewServerWithMux(service, basicAuth, managerAuth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		basicAuth = BasicAuth{}
		managerAuth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleExtract", func() {
		When("uploading a timesheet image", func() {
			It("should return the extraction and validation results", func() {
				body, contentType := multipartUpload("timesheet.png", pngFixture(), map[string]string{
					"date":        "2023-07-03",
					"total_hours": "7.5",
				})
				resp, err := http.Post(ghttpServer.URL()+"/api/timesheets/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcome Outcome
				Expect(json.NewDecoder(resp.Body).Decode(&outcome)).NotTo(HaveOccurred())
				Expect(outcome.Message).To(Equal("file processed and validated successfully"))
				Expect(outcome.Validation.Valid).To(BeTrue())
				Expect(outcome.ImageData.Data.Records).To(HaveLen(1))
			})

			It("should accept bracketed weekly form fields", func() {
				body, contentType := multipartUpload("timesheet.png", pngFixture(), map[string]string{
					"[2023-07-03][time_in]":     "09:00",
					"[2023-07-03][time_out]":    "17:00",
					"[2023-07-03][total_hours]": "7.5",
				})
				resp, err := http.Post(ghttpServer.URL()+"/api/timesheets/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcome Outcome
				Expect(json.NewDecoder(resp.Body).Decode(&outcome)).NotTo(HaveOccurred())
				Expect(outcome.Validation.Valid).To(BeTrue())
			})
		})

		When("no file is attached", func() {
			It("should return status Bad Request", func() {
				body, contentType := multipartUpload("", nil, map[string]string{"date": "2023-07-03"})
				resp, err := http.Post(ghttpServer.URL()+"/api/timesheets/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the upload is not a readable image", func() {
			It("should return status Bad Request", func() {
				body, contentType := multipartUpload("timesheet.png", []byte("garbage"), nil)
				resp, err := http.Post(ghttpServer.URL()+"/api/timesheets/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleSaveTimesheet", func() {
		It("should create a weekly draft from bracketed fields", func() {
			body, contentType := multipartUpload("", nil, map[string]string{
				"[2023-07-04][time_in]":       "09:00",
				"[2023-07-04][time_out]":      "17:00",
				"[2023-07-04][lunch_timeout]": "30",
				"[2023-07-04][total_hours]":   "7.5",
				"user_id":                     "alice",
			})
			resp, err := http.Post(ghttpServer.URL()+"/api/timesheets", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var ts Timesheet
			Expect(json.NewDecoder(resp.Body).Decode(&ts)).NotTo(HaveOccurred())
			Expect(ts.WeekStart).To(Equal("2023-07-03"))
			Expect(ts.Days).To(HaveLen(5))
			Expect(ts.IsDraft).To(BeTrue())
		})

		It("should reject a form with no day entries", func() {
			body, contentType := multipartUpload("", nil, map[string]string{"user_id": "alice"})
			resp, err := http.Post(ghttpServer.URL()+"/api/timesheets", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("handleGetTimesheet", func() {
		When("the timesheet exists", func() {
			BeforeEach(func() {
				db.timesheets["week-1"] = &Timesheet{ID: "week-1", UserID: "alice"}
			})

			It("should return it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/timesheets/week-1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var ts Timesheet
				Expect(json.NewDecoder(resp.Body).Decode(&ts)).NotTo(HaveOccurred())
				Expect(ts.ID).To(Equal("week-1"))
			})
		})

		When("the timesheet does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/timesheets/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			basicAuth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/timesheets")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		When("valid credentials are provided", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/timesheets", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})

	Describe("manager auth", func() {
		BeforeEach(func() {
			basicAuth = BasicAuth{Username: "user", Password: "pass"}
			managerAuth = BasicAuth{Username: "boss", Password: "secret"}
			setupServer()
			db.timesheets["week-1"] = &Timesheet{
				ID:          "week-1",
				Status:      StatusSubmitted,
				IsValidated: true,
			}
		})

		When("an employee tries to approve", func() {
			It("should return status Forbidden", func() {
				req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/timesheets/week-1/approve", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
				resp.Body.Close()
			})
		})

		When("a manager approves a validated sheet", func() {
			It("should return the approved timesheet", func() {
				req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/timesheets/week-1/approve", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("boss", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var ts Timesheet
				Expect(json.NewDecoder(resp.Body).Decode(&ts)).NotTo(HaveOccurred())
				Expect(ts.Status).To(Equal(StatusApproved))
			})
		})

		When("a manager uses employee endpoints", func() {
			It("should accept manager credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/timesheets", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("boss", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("an employee lists audit logs", func() {
			It("should return status Forbidden", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/audits", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
				resp.Body.Close()
			})
		})
	})

	Describe("handleExport", func() {
		BeforeEach(func() {
			db.timesheets["week-1"] = &Timesheet{
				ID:        "week-1",
				UserID:    "alice",
				WeekStart: "2023-07-03",
				Days: []DayEntry{
					{Date: "2023-07-03", TimeIn: "09:00", TimeOut: "17:00", TotalHours: 7.5, Status: DayStatusApproved},
				},
			}
		})

		It("should return an XLSX attachment", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/timesheets/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("timesheets.xlsx"))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			// XLSX files are ZIP archives.
			Expect(data[:2]).To(Equal([]byte("PK")))
		})
	})

	Describe("CORS preflight", func() {
		It("should answer OPTIONS without authentication", func() {
			basicAuth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()

			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/timesheets", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})
	})
})
