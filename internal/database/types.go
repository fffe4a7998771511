package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DateLayout is how DATE columns are written.
const DateLayout = "2006-01-02"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	DateLayout,
}

// NullTime scans DATE and DATETIME columns whatever representation the driver returns.
type NullTime struct {
	Time  time.Time
	Valid bool
}

func (nt *NullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	case time.Time:
		nt.Time, nt.Valid = v.UTC(), true
		return nil
	case []byte:
		return nt.parse(string(v))
	case string:
		return nt.parse(v)
	}
	return fmt.Errorf("cannot scan %T into NullTime", value)
}

func (nt *NullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			nt.Time, nt.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}

// Ptr returns nil for NULL.
func (nt NullTime) Ptr() *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// Date formats t for a DATE column.
func Date(t time.Time) string {
	return t.Format(DateLayout)
}

// Timestamp normalizes t for a DATETIME column.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Now is the timestamp written for "now". Tests may replace it.
var Now = func() time.Time {
	return Timestamp(time.Now())
}

// NullString maps "" to NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NullInt64 maps a nil pointer to NULL.
func NullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// NullTimePtr maps a nil pointer to NULL.
func NullTimePtr(p *time.Time) any {
	if p == nil {
		return nil
	}
	return Timestamp(*p)
}
