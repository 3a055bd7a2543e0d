package models

// TimeLayout is the wall-clock format shared by visit dates and report create_time values.
const TimeLayout = "2006-01-02 15:04:05"

// Report is a generated diagnostic report. Immutable once stored.
type Report struct {
	ID         string `json:"-"`
	UserID     int64  `json:"-"`
	Content    string `json:"content"`
	CreateTime string `json:"create_time"`
}
