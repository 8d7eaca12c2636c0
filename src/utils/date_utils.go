package utils

import (
	"log"
	"time"
)

const DefaultDateFormat = "2006-01-02"

// ParseDate parses a date string using the default format.
// Logs an error and returns zero time if parsing fails.
func ParseDate(dateStr string) time.Time {
	t, err := time.Parse(DefaultDateFormat, dateStr)
	if err != nil {
		log.Printf("Error parsing date '%s' with format '%s': %v. Returning zero time.", dateStr, DefaultDateFormat, err)
		return time.Time{}
	}
	return t
}

// FormatDate renders a date in the default format.
func FormatDate(t time.Time) string {
	return t.Format(DefaultDateFormat)
}

// Day truncates a timestamp to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns the following calendar day.
func NextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}
