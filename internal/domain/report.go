package domain

import "time"

// ReportQuery is the query text submitted to the reporting service.
type ReportQuery string

func (q ReportQuery) String() string { return string(q) }

// ReportResult is the tabular data returned by the reporting service.
// It is forwarded to sinks as-is.
type ReportResult struct {
	Columns []string
	Rows    [][]any
}

// ExportRecord is an archived copy of one report export.
type ExportRecord struct {
	ID         string      `json:"id"`
	Query      ReportQuery `json:"query"`
	Window     *DateWindow `json:"window,omitempty"`
	Columns    []string    `json:"columns"`
	Rows       [][]any     `json:"rows,omitempty"`
	RowCount   int         `json:"row_count"`
	ExportedAt time.Time   `json:"exported_at"`
}
