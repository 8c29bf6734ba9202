package foodlog

import (
	"context"
	"slices"
	"sync"
	"time"

	"macrolog"
	"macrolog/entry"
	"macrolog/oauth"
	"macrolog/parser"
)

var testNow = time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)

type fakeSession struct {
	mu            sync.Mutex
	tokens        oauth.TokenState
	spreadsheetID string
	provider      parser.Provider
	apiKey        string
	updates       []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		tokens:        oauth.TokenState{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(time.Hour)},
		spreadsheetID: "sheet-123",
		provider:      parser.Mock,
	}
}

func (s *fakeSession) Tokens() oauth.TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *fakeSession) UpdateAccessToken(_ context.Context, accessToken string, expiresIn int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = s.tokens.Refreshed(accessToken, expiresIn, testNow)
	s.updates = append(s.updates, accessToken)
	return nil
}

func (s *fakeSession) SpreadsheetID() string { return s.spreadsheetID }

func (s *fakeSession) GoogleCredentials() (string, string) { return "client-id", "client-secret" }

func (s *fakeSession) ActiveProvider() (parser.Provider, string) { return s.provider, s.apiKey }

type fakeParser struct {
	mu      sync.Mutex
	results []macrolog.ParseResult
	errs    []error
	inputs  []string
	// block, when set, holds Parse until it is closed.
	started chan struct{}
	block   chan struct{}
}

func (p *fakeParser) Parse(ctx context.Context, _ parser.Provider, _ string, input string) (macrolog.ParseResult, error) {
	if p.block != nil {
		close(p.started)
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, input)

	var err error
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	if err != nil {
		return macrolog.ParseResult{}, err
	}
	var res macrolog.ParseResult
	if len(p.results) > 0 {
		res, p.results = p.results[0], p.results[1:]
	}
	return res, nil
}

type storeCall struct {
	Op    string
	Token string
	Rows  []int
	Count int
}

// fakeStore is an in-memory sheet. Each *Errs queue is consumed one error per call.
type fakeStore struct {
	mu         sync.Mutex
	rows       []entry.LogEntry
	calls      []storeCall
	ensureErrs []error
	writeErrs  []error
	deleteErrs []error
	readErr    error
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

func (s *fakeStore) EnsureLogSheet(_ context.Context, _ string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "ensure", Token: token})
	return pop(&s.ensureErrs)
}

func (s *fakeStore) ReadAllEntries(_ context.Context, _ string, token string) ([]entry.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "read", Token: token})
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([]entry.LogEntry, len(s.rows))
	for i, r := range s.rows {
		r.SheetRow = i
		out[i] = r
	}
	return out, nil
}

func (s *fakeStore) WriteEntries(_ context.Context, _ string, token string, entries []entry.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "write", Token: token, Count: len(entries)})
	if err := pop(&s.writeErrs); err != nil {
		return err
	}
	s.rows = append(s.rows, entries...)
	return nil
}

func (s *fakeStore) DeleteEntries(_ context.Context, _ string, token string, sheetRows []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "delete", Token: token, Rows: slices.Clone(sheetRows)})
	if err := pop(&s.deleteErrs); err != nil {
		return err
	}
	var kept []entry.LogEntry
	for i, r := range s.rows {
		if !slices.Contains(sheetRows, i) {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *fakeStore) callsFor(op string) []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storeCall
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

type fakeRefresher struct {
	calls []oauth.RefreshRequest
	resp  oauth.RefreshResponse
	err   error
}

func (r *fakeRefresher) Refresh(_ context.Context, req oauth.RefreshRequest) (oauth.RefreshResponse, error) {
	r.calls = append(r.calls, req)
	return r.resp, r.err
}

type captureLogger struct {
	ops []macrolog.OperationLog
}

func (c *captureLogger) LogOperation(op macrolog.OperationLog) error {
	c.ops = append(c.ops, op)
	return nil
}

func (c *captureLogger) last(name string) macrolog.OperationLog {
	for i := len(c.ops) - 1; i >= 0; i-- {
		if c.ops[i].Operation == name {
			return c.ops[i]
		}
	}
	return macrolog.OperationLog{}
}

type harness struct {
	log       *FoodLog
	session   *fakeSession
	parser    *fakeParser
	store     *fakeStore
	refresher *fakeRefresher
	logger    *captureLogger
}

func newHarness() *harness {
	h := &harness{
		session:   newFakeSession(),
		parser:    &fakeParser{},
		store:     &fakeStore{},
		refresher: &fakeRefresher{resp: oauth.RefreshResponse{AccessToken: "access-2", ExpiresIn: 3600}},
		logger:    &captureLogger{},
	}
	ids := 0
	h.log = New(Options{
		Session:   h.session,
		Parser:    h.parser,
		Store:     h.store,
		Refresher: h.refresher,
		Logger:    h.logger,
		Location:  time.UTC,
		Now:       func() time.Time { return testNow },
		NewGroupID: func() string {
			ids++
			return "group-" + string(rune('0'+ids))
		},
	})
	return h
}

var chickenLunch = macrolog.ParseResult{
	MealLabel: "Lunch",
	Items:     []macrolog.ParsedItem{{Description: "Chicken", Calories: 300, ProteinG: 30, CarbsG: 0, FatG: 10}},
}

// withPending parses res so the harness holds it as the pending meal.
func (h *harness) withPending(res macrolog.ParseResult, input string) error {
	h.parser.results = append(h.parser.results, res)
	return h.log.Parse(context.Background(), input)
}
