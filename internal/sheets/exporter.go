package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/splax/adsync/internal/service/report"
)

// ErrInvalidLocator indicates the spreadsheet URL carries no spreadsheet id.
var ErrInvalidLocator = errors.New("invalid spreadsheet locator")

// ErrNoSheets indicates the spreadsheet has no worksheet to export into.
var ErrNoSheets = errors.New("spreadsheet has no sheets")

// Exporter overwrites one worksheet with a report result.
type Exporter struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

var _ report.Sink = (*Exporter)(nil)

// New builds an exporter for the spreadsheet at locator. An empty sheetName
// targets the first worksheet.
func New(ctx context.Context, locator, sheetName string, logger *slog.Logger, opts ...option.ClientOption) (*Exporter, error) {
	id, err := SpreadsheetID(locator)
	if err != nil {
		return nil, err
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{svc: svc, spreadsheetID: id, sheetName: strings.TrimSpace(sheetName), logger: logger}, nil
}

// SpreadsheetID extracts the id from a docs.google.com/spreadsheets/d/<id>/... URL.
// A bare id is returned unchanged.
func SpreadsheetID(locator string) (string, error) {
	trimmed := strings.TrimSpace(locator)
	if trimmed == "" {
		return "", ErrInvalidLocator
	}
	if !strings.Contains(trimmed, "/") {
		return trimmed, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "spreadsheets" && parts[i+1] == "d" && parts[i+2] != "" {
			return parts[i+2], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidLocator, trimmed)
}

// Export clears the target sheet and writes a header row followed by the rows.
func (e *Exporter) Export(ctx context.Context, req report.ExportRequest) error {
	title, err := e.targetSheet(ctx)
	if err != nil {
		return err
	}
	rng := quoteSheet(title)

	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", title, err)
	}

	values := make([][]interface{}, 0, len(req.Result.Rows)+1)
	header := make([]interface{}, len(req.Result.Columns))
	for i, col := range req.Result.Columns {
		header[i] = col
	}
	values = append(values, header)
	for _, row := range req.Result.Rows {
		values = append(values, cells(row))
	}

	body := &gsheets.ValueRange{Range: rng + "!A1", MajorDimension: "ROWS", Values: values}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, body.Range, body).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write sheet %s: %w", title, err)
	}
	e.logger.Info("report written to sheet", "spreadsheet_id", e.spreadsheetID, "sheet", title, "rows", len(req.Result.Rows))
	return nil
}

func (e *Exporter) targetSheet(ctx context.Context) (string, error) {
	if e.sheetName != "" {
		return e.sheetName, nil
	}
	doc, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("load spreadsheet: %w", err)
	}
	for _, sheet := range doc.Sheets {
		if sheet != nil && sheet.Properties != nil && sheet.Properties.Title != "" {
			return sheet.Properties.Title, nil
		}
	}
	return "", ErrNoSheets
}

// cells writes nil values as empty cells.
func cells(row []any) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		if v == nil {
			out[i] = ""
			continue
		}
		out[i] = v
	}
	return out
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
