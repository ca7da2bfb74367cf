package inventory

import (
	"encoding/json"
	"time"
)

const expiryLayout = "2006-01-02"

// ExpiryDate is either "no expiry tracked" or a calendar date.
// The zero value is NoExpiry.
type ExpiryDate struct {
	date time.Time
	set  bool
}

// NoExpiry returns an expiry that is not tracked
func NoExpiry() ExpiryDate {
	return ExpiryDate{}
}

// ExpiresOn returns an expiry on the calendar date of t
func ExpiresOn(t time.Time) ExpiryDate {
	return ExpiryDate{date: DateOf(t), set: true}
}

// ExpiryFromPtr converts a nullable column value
func ExpiryFromPtr(t *time.Time) ExpiryDate {
	if t == nil {
		return NoExpiry()
	}
	return ExpiresOn(*t)
}

// ParseExpiry parses YYYY-MM-DD; empty string means no expiry
func ParseExpiry(s string) (ExpiryDate, error) {
	if s == "" {
		return NoExpiry(), nil
	}
	t, err := time.Parse(expiryLayout, s)
	if err != nil {
		return NoExpiry(), err
	}
	return ExpiresOn(t), nil
}

// DateOf truncates t to its calendar date at UTC midnight
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsSet reports whether an expiry date is tracked
func (e ExpiryDate) IsSet() bool {
	return e.set
}

// Date returns the expiry date and whether it is set
func (e ExpiryDate) Date() (time.Time, bool) {
	return e.date, e.set
}

// Ptr returns the date for nullable storage
func (e ExpiryDate) Ptr() *time.Time {
	if !e.set {
		return nil
	}
	d := e.date
	return &d
}

// Compare orders expiry dates ascending with untracked expiry last
func (e ExpiryDate) Compare(other ExpiryDate) int {
	switch {
	case !e.set && !other.set:
		return 0
	case !e.set:
		return 1
	case !other.set:
		return -1
	case e.date.Before(other.date):
		return -1
	case e.date.After(other.date):
		return 1
	}
	return 0
}

// IsExpiredOn reports whether the date lies strictly before today
func (e ExpiryDate) IsExpiredOn(today time.Time) bool {
	return e.set && e.date.Before(DateOf(today))
}

// DaysUntil returns whole days from today to expiry; negative when past
func (e ExpiryDate) DaysUntil(today time.Time) (int, bool) {
	if !e.set {
		return 0, false
	}
	return int(e.date.Sub(DateOf(today)).Hours() / 24), true
}

// String returns the date in YYYY-MM-DD form or "none"
func (e ExpiryDate) String() string {
	if !e.set {
		return "none"
	}
	return e.date.Format(expiryLayout)
}

// MarshalJSON encodes an untracked expiry as null
func (e ExpiryDate) MarshalJSON() ([]byte, error) {
	if !e.set {
		return []byte("null"), nil
	}
	return json.Marshal(e.date.Format(expiryLayout))
}

// UnmarshalJSON accepts null or YYYY-MM-DD
func (e *ExpiryDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = NoExpiry()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseExpiry(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
