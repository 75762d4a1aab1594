package model

import (
	"fmt"
	"time"
)

// ComputeWeekKey returns the ISO-8601 week identifier (YYYY-Www) of the
// calendar date of t. The year is the ISO week-year, which differs from the
// calendar year around January 1st.
func ComputeWeekKey(t time.Time) string {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	isoDay := int(d.Weekday())
	if isoDay == 0 {
		isoDay = 7
	}
	thursday := d.AddDate(0, 0, 4-isoDay)

	yearStart := time.Date(thursday.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(thursday.Sub(yearStart).Hours() / 24)
	week := (days + 1 + 6) / 7

	return fmt.Sprintf("%d-W%02d", thursday.Year(), week)
}

// CurrentWeekKey returns the week key of now(). A nil now uses time.Now.
func CurrentWeekKey(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return ComputeWeekKey(now())
}
