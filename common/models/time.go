package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const timestampStorageFormat = "2006-01-02 15:04:05.999999-07:00"

// Time is a timestamp as the datastore stores it: UTC, rounded to microsecond
// precision so a value read back compares equal to the value written on both
// dialects.
type Time struct {
	time.Time
}

func NewTime(t time.Time) Time {
	return Time{Time: t.UTC().Round(time.Microsecond)}
}

func NewTimePtr(t time.Time) *Time {
	newTime := NewTime(t)
	return &newTime
}

// Scan accepts the time.Time values produced by the postgres driver and the
// string values produced by sqlite.
func (s *Time) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch t := src.(type) {
	case time.Time:
		*s = NewTime(t)
	case string:
		parsedTime, err := time.Parse(timestampStorageFormat, t)
		if err != nil {
			return errors.Wrap(err, "error parsing time")
		}
		*s = Time{Time: parsedTime.UTC()}
	default:
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	return nil
}

// Value converts a time into the format stored in the database, also usable
// in WHERE clause comparisons.
func (s Time) Value() (driver.Value, error) {
	return s.Format(timestampStorageFormat), nil
}
