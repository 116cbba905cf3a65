package timesheet

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	timesheetBucketName = "timesheets"
	auditBucketName     = "audits"
)

// DB defines the interface for database operations.
type DB interface {
	// SaveTimesheet saves a timesheet document.
	SaveTimesheet(ts *Timesheet) error

	// GetTimesheet retrieves a timesheet by ID.
	GetTimesheet(id string) (*Timesheet, error)

	// FindTimesheetByWeek retrieves the timesheet for a user's week.
	FindTimesheetByWeek(userID, weekStart string) (*Timesheet, error)

	// ListTimesheets returns all timesheets.
	ListTimesheets() ([]*Timesheet, error)

	// DeleteTimesheet removes a timesheet.
	DeleteTimesheet(id string) error

	// SaveAudit saves an audit log entry.
	SaveAudit(audit *AuditLog) error

	// GetAudit retrieves an audit log by ID.
	GetAudit(id string) (*AuditLog, error)

	// ListAudits returns all audit logs.
	ListAudits() ([]*AuditLog, error)

	// Close closes the database connection.
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(timesheetBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(auditBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveTimesheet saves a timesheet document.
func (b *BoltDB) SaveTimesheet(ts *Timesheet) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(timesheetBucketName))
		data, err := json.Marshal(ts)
		if err != nil {
			return fmt.Errorf("marshaling timesheet: %w", err)
		}
		return bucket.Put([]byte(ts.ID), data)
	})
}

// GetTimesheet retrieves a timesheet by ID.
func (b *BoltDB) GetTimesheet(id string) (*Timesheet, error) {
	var ts *Timesheet
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(timesheetBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("timesheet not found: %s", id)
		}
		return json.Unmarshal(data, &ts)
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// FindTimesheetByWeek retrieves the timesheet for a user's week.
func (b *BoltDB) FindTimesheetByWeek(userID, weekStart string) (*Timesheet, error) {
	var found *Timesheet
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(timesheetBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var ts Timesheet
			if err := json.Unmarshal(v, &ts); err != nil {
				return fmt.Errorf("unmarshaling timesheet: %w", err)
			}
			if ts.UserID == userID && ts.WeekStart == weekStart {
				found = &ts
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("timesheet not found for user %s week %s", userID, weekStart)
	}
	return found, nil
}

// ListTimesheets returns all timesheets.
func (b *BoltDB) ListTimesheets() ([]*Timesheet, error) {
	timesheets := make([]*Timesheet, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(timesheetBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var ts Timesheet
			if err := json.Unmarshal(v, &ts); err != nil {
				return fmt.Errorf("unmarshaling timesheet: %w", err)
			}
			timesheets = append(timesheets, &ts)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return timesheets, nil
}

// DeleteTimesheet removes a timesheet.
func (b *BoltDB) DeleteTimesheet(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(timesheetBucketName))
		return bucket.Delete([]byte(id))
	})
}

// SaveAudit saves an audit log entry.
func (b *BoltDB) SaveAudit(audit *AuditLog) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(auditBucketName))
		data, err := json.Marshal(audit)
		if err != nil {
			return fmt.Errorf("marshaling audit log: %w", err)
		}
		return bucket.Put([]byte(audit.ID), data)
	})
}

// GetAudit retrieves an audit log by ID.
func (b *BoltDB) GetAudit(id string) (*AuditLog, error) {
	var audit *AuditLog
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(auditBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("audit log not found: %s", id)
		}
		return json.Unmarshal(data, &audit)
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// ListAudits returns all audit logs.
func (b *BoltDB) ListAudits() ([]*AuditLog, error) {
	audits := make([]*AuditLog, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(auditBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var audit AuditLog
			if err := json.Unmarshal(v, &audit); err != nil {
				return fmt.Errorf("unmarshaling audit log: %w", err)
			}
			audits = append(audits, &audit)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return audits, nil
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
