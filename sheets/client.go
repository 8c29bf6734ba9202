package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"macrolog"
	"macrolog/entry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultSheetName = "Log"

// Options configures a Client. Zero values select the public Sheets API and the "Log" sheet.
type Options struct {
	SheetName  string
	Endpoint   string
	HTTPClient *http.Client
}

// Client is the log-store adapter over Google Sheets v4. It keeps no credentials; every call
// carries the bearer token it should use.
type Client struct {
	sheetName  string
	endpoint   string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewClient(opts Options) *Client {
	if opts.SheetName == "" {
		opts.SheetName = DefaultSheetName
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		sheetName:  opts.SheetName,
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
		tracer:     otel.Tracer(macrolog.TracerNameSheets),
	}
}

// NewClientFromConfig builds a Client from environment-backed settings.
func NewClientFromConfig(cfg macrolog.SheetsConfig) *Client {
	return NewClient(Options{SheetName: cfg.SheetName, Endpoint: cfg.Endpoint})
}

func (c *Client) service(ctx context.Context, token string) (*gsheet.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	hc := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return svc, nil
}

// sheetRef quotes the sheet name for A1 notation, doubling any apostrophe.
func (c *Client) sheetRef() string {
	return "'" + strings.ReplaceAll(c.sheetName, "'", "''") + "'"
}

func (c *Client) logRange() string {
	return fmt.Sprintf("%s!A:%s", c.sheetRef(), lastColumn())
}

func (c *Client) headerRange(from int) string {
	return fmt.Sprintf("%s!%s1:%s1", c.sheetRef(), ColumnLetter(from), lastColumn())
}

// ReadAllEntries fetches the whole log range. A missing spreadsheet or sheet reads as an
// empty log.
func (c *Client) ReadAllEntries(ctx context.Context, spreadsheetID, token string) ([]entry.LogEntry, error) {
	ctx, span := c.tracer.Start(ctx, "Client.ReadAllEntries")
	defer span.End()

	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, fail(span, err)
	}

	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, c.logRange()).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			slog.Info("SHEETS: log range not found, treating as empty", "spreadsheet_id", spreadsheetID)
			return []entry.LogEntry{}, nil
		}
		return nil, fail(span, classify("read entries", err))
	}

	entries := decodeRows(resp.Values)
	span.SetAttributes(attribute.Int("entries", len(entries)))
	slog.Info("SHEETS: read entries", "spreadsheet_id", spreadsheetID, "count", len(entries))
	return entries, nil
}

// WriteEntries appends one row per entry after the last data row.
func (c *Client) WriteEntries(ctx context.Context, spreadsheetID, token string, entries []entry.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "Client.WriteEntries")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(entries)))

	svc, err := c.service(ctx, token)
	if err != nil {
		return fail(span, err)
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, encodeRow(e))
	}

	_, err = svc.Spreadsheets.Values.Append(spreadsheetID, c.logRange(), &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fail(span, classify("write entries", err))
	}

	slog.Info("SHEETS: appended rows", "spreadsheet_id", spreadsheetID, "rows", len(rows))
	return nil
}

// EnsureLogSheet creates the log sheet when absent and brings its header up to the current
// schema. A header that disagrees with the schema on a shared position is a schema
// conflict and nothing is written.
func (c *Client) EnsureLogSheet(ctx context.Context, spreadsheetID, token string) error {
	ctx, span := c.tracer.Start(ctx, "Client.EnsureLogSheet")
	defer span.End()

	svc, err := c.service(ctx, token)
	if err != nil {
		return fail(span, err)
	}

	if _, found, err := c.sheetID(ctx, svc, spreadsheetID); err != nil {
		return fail(span, err)
	} else if !found {
		slog.Info("SHEETS: creating log sheet", "spreadsheet_id", spreadsheetID, "sheet", c.sheetName)
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: c.sheetName}},
		}}}
		if _, err := svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fail(span, classify("create log sheet", err))
		}
		return fail(span, c.writeHeader(ctx, svc, spreadsheetID, 0))
	}

	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, fmt.Sprintf("%s!1:1", c.sheetRef())).Context(ctx).Do()
	if err != nil {
		return fail(span, classify("read header", err))
	}
	var existing []string
	if len(resp.Values) > 0 {
		existing = cellStrings(resp.Values[0])
	}

	if len(existing) == 0 {
		return fail(span, c.writeHeader(ctx, svc, spreadsheetID, 0))
	}

	if at := checkHeader(existing); at >= 0 {
		err := &macrolog.StoreError{
			Message: fmt.Sprintf("expected column %d to be %q but found %q", at+1, Schema[at], existing[at]),
			Err:     macrolog.ErrSchemaConflict,
		}
		slog.Error("SHEETS: schema conflict", "spreadsheet_id", spreadsheetID, "column", at+1)
		return fail(span, err)
	}

	if len(existing) >= len(Schema) {
		return nil
	}

	slog.Info("SHEETS: migrating header", "spreadsheet_id", spreadsheetID, "from", len(existing), "to", len(Schema))
	return fail(span, c.writeHeader(ctx, svc, spreadsheetID, len(existing)))
}

// writeHeader writes Schema[from:] starting at column from+1.
func (c *Client) writeHeader(ctx context.Context, svc *gsheet.Service, spreadsheetID string, from int) error {
	cells := make([]any, 0, len(Schema)-from)
	for _, h := range Schema[from:] {
		cells = append(cells, h)
	}
	_, err := svc.Spreadsheets.Values.Update(spreadsheetID, c.headerRange(from+1), &gsheet.ValueRange{Values: [][]any{cells}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("write header", err)
	}
	return nil
}

// DeleteEntries removes the given data rows in one batch, highest row first so earlier
// deletions never shift a row still to be deleted.
func (c *Client) DeleteEntries(ctx context.Context, spreadsheetID, token string, sheetRows []int) error {
	if len(sheetRows) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "Client.DeleteEntries")
	defer span.End()

	rows := slices.Clone(sheetRows)
	slices.Sort(rows)
	rows = slices.Compact(rows)
	slices.Reverse(rows)
	if rows[len(rows)-1] < 0 {
		return fail(span, &macrolog.ValidationError{Field: "sheetRows", Message: "row index must not be negative"})
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))

	svc, err := c.service(ctx, token)
	if err != nil {
		return fail(span, err)
	}

	id, found, err := c.sheetID(ctx, svc, spreadsheetID)
	if err != nil {
		return fail(span, err)
	}
	if !found {
		return fail(span, &macrolog.StoreError{Message: fmt.Sprintf("sheet %q not found in spreadsheet", c.sheetName)})
	}

	requests := make([]*gsheet.Request, 0, len(rows))
	for _, r := range rows {
		requests = append(requests, &gsheet.Request{DeleteDimension: &gsheet.DeleteDimensionRequest{
			Range: &gsheet.DimensionRange{
				SheetId:    id,
				Dimension:  "ROWS",
				StartIndex: int64(r + 1),
				EndIndex:   int64(r + 2),
				// sheet 0 is a valid id and must not be dropped as empty
				ForceSendFields: []string{"SheetId"},
			},
		}})
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fail(span, classify("delete rows", err))
	}

	slog.Info("SHEETS: deleted rows", "spreadsheet_id", spreadsheetID, "rows", rows)
	return nil
}

// sheetID resolves the numeric id of the log sheet.
func (c *Client) sheetID(ctx context.Context, svc *gsheet.Service, spreadsheetID string) (int64, bool, error) {
	meta, err := svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return 0, false, classify("read spreadsheet metadata", err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

// classify turns API failures into StoreError with the HTTP status, and anything that
// never produced a response into NetworkError.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &macrolog.StoreError{Status: gerr.Code, Message: fmt.Sprintf("%s: %s", op, msg), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &macrolog.NetworkError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
