package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/splax/adsync/internal/domain"
)

var (
	// ErrEmptyPredicate indicates neither a relative range nor a window was supplied.
	ErrEmptyPredicate = errors.New("report predicate is empty")
	// ErrAmbiguousPredicate indicates both a relative range and a window were supplied.
	ErrAmbiguousPredicate = errors.New("report predicate sets both relative range and window")
	// ErrIncompleteSelection indicates the field list or source view is missing.
	ErrIncompleteSelection = errors.New("report selection requires fields and source")
)

const dateSegment = "segments.date"

// QueryBuilder renders report queries over a fixed field list and view.
type QueryBuilder struct {
	Fields []string
	Source string
}

// Build renders the query for the predicate.
func (b QueryBuilder) Build(p domain.Predicate) (domain.ReportQuery, error) {
	source := strings.TrimSpace(b.Source)
	if len(b.Fields) == 0 || source == "" {
		return "", ErrIncompleteSelection
	}
	var where string
	switch {
	case p.IsZero():
		return "", ErrEmptyPredicate
	case p.Relative != "" && p.Window != nil:
		return "", ErrAmbiguousPredicate
	case p.Window != nil:
		where = fmt.Sprintf("%s BETWEEN '%s' AND '%s'", dateSegment, p.Window.StartString(), p.Window.EndString())
	default:
		where = fmt.Sprintf("%s DURING %s", dateSegment, p.Relative)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(b.Fields, ", "), source, where)
	return domain.ReportQuery(query), nil
}
