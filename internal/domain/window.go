package domain

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

// ErrUnsupportedRange indicates a relative day count with no named predicate.
var ErrUnsupportedRange = errors.New("unsupported relative date range")

// DateWindow is an inclusive calendar date range in the report time zone.
type DateWindow struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// Valid reports whether Start does not come after End.
func (w DateWindow) Valid() bool {
	return !w.Start.After(w.End)
}

// StartString formats Start as yyyy-MM-dd.
func (w DateWindow) StartString() string { return w.Start.String() }

// EndString formats End as yyyy-MM-dd.
func (w DateWindow) EndString() string { return w.End.String() }

func (w DateWindow) String() string {
	return w.Start.String() + ".." + w.End.String()
}

// RelativeRange is a named reporting period understood by the reporting API.
type RelativeRange string

const (
	Last7Days  RelativeRange = "LAST_7_DAYS"
	Last30Days RelativeRange = "LAST_30_DAYS"
)

// RelativeRangeForDays maps a trailing day count onto its named range.
func RelativeRangeForDays(days int) (RelativeRange, error) {
	switch days {
	case 7:
		return Last7Days, nil
	case 30:
		return Last30Days, nil
	default:
		return "", fmt.Errorf("%w: %d days", ErrUnsupportedRange, days)
	}
}

// Predicate constrains a report by either a relative range or an explicit window.
type Predicate struct {
	Relative RelativeRange
	Window   *DateWindow
}

// RelativePredicate wraps a named range.
func RelativePredicate(r RelativeRange) Predicate {
	return Predicate{Relative: r}
}

// WindowPredicate wraps an explicit window.
func WindowPredicate(w DateWindow) Predicate {
	return Predicate{Window: &w}
}

// IsZero reports whether neither constraint is set.
func (p Predicate) IsZero() bool {
	return p.Relative == "" && p.Window == nil
}
