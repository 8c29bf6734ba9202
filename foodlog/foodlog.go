package foodlog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"macrolog"
	"macrolog/entry"
	"macrolog/oauth"
	"macrolog/parser"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Status string

const (
	Idle     Status = "idle"
	Parsing  Status = "parsing"
	Writing  Status = "writing"
	Loading  Status = "loading"
	Deleting Status = "deleting"
	Refining Status = "refining"
)

var (
	// ErrBusy rejects a mutating call made while another operation is in flight.
	ErrBusy = errors.New("another food log operation is in progress")
	// ErrNoPendingResult is returned by Confirm and Refine when nothing has been parsed.
	ErrNoPendingResult = errors.New("no parsed meal to act on")
)

// Session is the owned configuration the food log reads at call time. The access token is
// only ever changed through UpdateAccessToken.
type Session interface {
	Tokens() oauth.TokenState
	UpdateAccessToken(ctx context.Context, accessToken string, expiresIn int) error
	SpreadsheetID() string
	GoogleCredentials() (clientID, clientSecret string)
	ActiveProvider() (parser.Provider, string)
}

type mealParser interface {
	Parse(ctx context.Context, provider parser.Provider, apiKey, input string) (macrolog.ParseResult, error)
}

type logStore interface {
	EnsureLogSheet(ctx context.Context, spreadsheetID, token string) error
	ReadAllEntries(ctx context.Context, spreadsheetID, token string) ([]entry.LogEntry, error)
	WriteEntries(ctx context.Context, spreadsheetID, token string, entries []entry.LogEntry) error
	DeleteEntries(ctx context.Context, spreadsheetID, token string, sheetRows []int) error
}

type tokenRefresher interface {
	Refresh(ctx context.Context, req oauth.RefreshRequest) (oauth.RefreshResponse, error)
}

// OpError is a failure surfaced to the user. IsAuthError asks for re-authorization.
type OpError struct {
	Message       string
	IsAuthError   bool
	IsRateLimited bool
	Err           error
}

func (e *OpError) Error() string { return e.Message }

func (e *OpError) Unwrap() error { return e.Err }

// State is a point-in-time copy of the food log for rendering.
type State struct {
	Status      Status
	Pending     *macrolog.ParseResult
	RawInput    string
	Refinements []string

	Entries []entry.LogEntry
	Groups  []entry.MealGroup
	Summary *entry.DailySummary
	// LastAte is the most recent entry across all dates, zero when none could be dated.
	LastAte time.Time

	Error       string
	RefineError string
	WriteError  *OpError
	DeleteError *OpError
}

type Options struct {
	Session   Session
	Parser    mealParser
	Store     logStore
	Refresher tokenRefresher

	Logger     macrolog.OperationLogger
	Location   *time.Location
	Now        func() time.Time
	NewGroupID func() string
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// FoodLog drives one user's session: parse free text, confirm it into the sheet, refine
// or discard it, delete logged meals and reload today's entries. Only one operation runs
// at a time; the others are rejected with ErrBusy.
type FoodLog struct {
	session   Session
	parser    mealParser
	store     logStore
	refresher tokenRefresher

	logger  macrolog.OperationLogger
	loc     *time.Location
	now     func() time.Time
	groupID func() string
	tracer  trace.Tracer
	metrics instruments

	mu    sync.Mutex
	state State
}

type instruments struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
	rowsAdded  metric.Int64Counter
	rowsGone   metric.Int64Counter
	refreshes  metric.Int64Counter
	retries    metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(m metric.Meter) instruments {
	var in instruments
	in.operations, _ = m.Int64Counter("foodlog_operations_total",
		metric.WithDescription("Total number of food log operations started"))
	in.failures, _ = m.Int64Counter("foodlog_operation_failures_total",
		metric.WithDescription("Total number of food log operations that failed"))
	in.rowsAdded, _ = m.Int64Counter("foodlog_rows_written_total",
		metric.WithDescription("Total number of log rows appended"))
	in.rowsGone, _ = m.Int64Counter("foodlog_rows_deleted_total",
		metric.WithDescription("Total number of log rows deleted"))
	in.refreshes, _ = m.Int64Counter("foodlog_token_refreshes_total",
		metric.WithDescription("Total number of access token refreshes"))
	in.retries, _ = m.Int64Counter("foodlog_retries_total",
		metric.WithDescription("Total number of writes or deletes retried after a refresh"))
	in.duration, _ = m.Float64Histogram("foodlog_operation_duration_seconds",
		metric.WithDescription("Duration of food log operations in seconds"))
	return in
}

func New(opts Options) *FoodLog {
	if opts.Logger == nil {
		opts.Logger = macrolog.NewNoOpOperationLogger()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewGroupID == nil {
		opts.NewGroupID = uuid.NewString
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(macrolog.TracerNameFoodLog)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(macrolog.TracerNameFoodLog)
	}

	return &FoodLog{
		session:   opts.Session,
		parser:    opts.Parser,
		store:     opts.Store,
		refresher: opts.Refresher,
		logger:    opts.Logger,
		loc:       opts.Location,
		now:       opts.Now,
		groupID:   opts.NewGroupID,
		tracer:    opts.Tracer,
		metrics:   newInstruments(opts.Meter),
		state:     State{Status: Idle},
	}
}

// Snapshot returns a copy of the current state.
func (f *FoodLog) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state
	if s.Pending != nil {
		p := *s.Pending
		p.Items = append([]macrolog.ParsedItem(nil), p.Items...)
		s.Pending = &p
	}
	if s.Summary != nil {
		sum := *s.Summary
		s.Summary = &sum
	}
	s.Refinements = append([]string(nil), s.Refinements...)
	s.Entries = append([]entry.LogEntry(nil), s.Entries...)
	s.Groups = append([]entry.MealGroup(nil), s.Groups...)
	return s
}

// begin claims the session for one operation.
func (f *FoodLog) begin(status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Status != Idle {
		return ErrBusy
	}
	f.state.Status = status
	return nil
}

func (f *FoodLog) end() {
	f.mu.Lock()
	f.state.Status = Idle
	f.mu.Unlock()
}

func (f *FoodLog) setStatus(status Status) {
	f.mu.Lock()
	f.state.Status = status
	f.mu.Unlock()
}

// update mutates state under the lock.
func (f *FoodLog) update(fn func(s *State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.state)
}

// operation wraps one public call with a span, metrics and the operation log.
type operation struct {
	f     *FoodLog
	name  string
	start time.Time
	span  trace.Span
	log   macrolog.OperationLog
}

func (f *FoodLog) startOperation(ctx context.Context, name string) (context.Context, *operation) {
	ctx, span := f.tracer.Start(ctx, "FoodLog."+name)
	f.metrics.operations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", name)))
	slog.Info("FOODLOG: starting operation", "operation", name)
	now := time.Now()
	return ctx, &operation{
		f:     f,
		name:  name,
		start: now,
		span:  span,
		log:   macrolog.OperationLog{Operation: name, Timestamp: now, Attempts: 1},
	}
}

func (op *operation) finish(ctx context.Context, err error) {
	defer op.span.End()

	op.log.Duration = time.Since(op.start)
	op.f.metrics.duration.Record(ctx, op.log.Duration.Seconds(), metric.WithAttributes(attribute.String("operation", op.name)))
	op.span.SetAttributes(
		attribute.Int("attempts", op.log.Attempts),
		attribute.Bool("refreshed", op.log.Refreshed),
		attribute.Int("rows", op.log.Rows),
	)

	if err != nil {
		op.log.Error = err.Error()
		op.f.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op.name)))
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, op.name+" failed")
		slog.Warn("FOODLOG: operation failed", "operation", op.name, "attempts", op.log.Attempts, "error", err)
	} else {
		slog.Info("FOODLOG: operation completed", "operation", op.name, "rows", op.log.Rows, "duration", op.log.Duration)
	}

	if lerr := op.f.logger.LogOperation(op.log); lerr != nil {
		slog.Error("FOODLOG: failed to log operation", "operation", op.name, "error", lerr)
	}
}
