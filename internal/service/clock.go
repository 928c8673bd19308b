package service

import (
	"time"

	"github.com/noah-isme/class-roster-api/internal/models"
)

// Clock supplies the current instant and the service-local calendar day.
type Clock struct {
	now func() time.Time
	loc *time.Location
}

// NewClock builds a clock reading now in loc. Nil arguments fall back to
// time.Now and UTC.
func NewClock(now func() time.Time, loc *time.Location) Clock {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return Clock{now: now, loc: loc}
}

// Now returns the current instant in the service time zone.
func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	if c.loc == nil {
		return c.now().UTC()
	}
	return c.now().In(c.loc)
}

// Today returns the calendar day of Now as a UTC midnight.
func (c Clock) Today() time.Time {
	return models.CivilDate(c.Now())
}
