package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	parsed := ParseDate("2020-03-02")
	assert.Equal(t, time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC), parsed)

	assert.True(t, ParseDate("02/03/2020").IsZero())
	assert.True(t, ParseDate("").IsZero())
}

func TestFormatDateRoundTrip(t *testing.T) {
	d := time.Date(1998, time.December, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "1998-12-30", FormatDate(d))
	assert.Equal(t, d, ParseDate(FormatDate(d)))
}

func TestDayTruncates(t *testing.T) {
	ts := time.Date(2020, time.March, 2, 17, 45, 3, 0, time.UTC)
	assert.Equal(t, time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC), Day(ts))
}

func TestNextDayCrossesMonthBoundary(t *testing.T) {
	d := time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC), NextDay(d))
}
