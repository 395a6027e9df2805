package window

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/splax/adsync/internal/domain"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Calculator derives trailing report windows anchored before today.
//
// The window is [today-LookbackDays, today-EndOffsetDays] where today is the
// calendar date of the supplied instant in Location. Inverted configurations
// (LookbackDays < EndOffsetDays) are not rejected here; config.Validate does that.
type Calculator struct {
	LookbackDays  int
	EndOffsetDays int
	Location      *time.Location
}

// New returns a Calculator. A nil location means UTC.
func New(lookbackDays, endOffsetDays int, loc *time.Location) Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return Calculator{LookbackDays: lookbackDays, EndOffsetDays: endOffsetDays, Location: loc}
}

// Compute returns the window for the given instant.
func (c Calculator) Compute(now time.Time) domain.DateWindow {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	today := civil.DateOf(now.In(loc))
	return domain.DateWindow{
		Start: today.AddDays(-c.LookbackDays),
		End:   today.AddDays(-c.EndOffsetDays),
	}
}
