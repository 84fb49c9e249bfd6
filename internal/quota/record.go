package quota

import (
	"time"
)

// DateLayout is the calendar day format stored in the quota file
const DateLayout = "2006-01-02"

// Record is the persisted quota file.
type Record struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Tag   string `json:"tag"`
}

// valid reports whether the fields are well formed, independent of the tag
func (r Record) valid() bool {
	if r.Count < 0 {
		return false
	}
	_, err := time.Parse(DateLayout, r.Date)
	return err == nil
}

// Usage is the quota state for a day.
type Usage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Limit int    `json:"limit"`
}

// Remaining returns how many downloads are left today
func (u Usage) Remaining() int {
	return max(0, u.Limit-u.Count)
}

// Exhausted reports whether no downloads are left
func (u Usage) Exhausted() bool {
	return u.Count >= u.Limit
}

// Today formats t as a local calendar day
func Today(t time.Time) string {
	return t.Format(DateLayout)
}
