package sheets

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gsheet "google.golang.org/api/sheets/v4"
)

const testSpreadsheetID = "sheet-123"

type sheetMeta struct {
	ID    int64
	Title string
}

type fakeCall struct {
	Op     string
	Method string
	Path   string
	Body   []byte
}

// fakeSheets is an in-memory stand-in for the Sheets v4 REST surface the client uses.
type fakeSheets struct {
	mu     sync.Mutex
	sheets []sheetMeta
	values [][]any
	fail   map[string]int
	calls  []fakeCall
	auth   []string
}

func newFakeSheets(values ...[]any) *fakeSheets {
	return &fakeSheets{
		sheets: []sheetMeta{{ID: 0, Title: "Log"}},
		values: values,
		fail:   map[string]int{},
	}
}

func headerRow(names ...string) []any {
	row := make([]any, len(names))
	for i, n := range names {
		row[i] = n
	}
	return row
}

func fullHeader() []any { return headerRow(Schema...) }

func (f *fakeSheets) route(r *http.Request) string {
	p := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/"+testSpreadsheetID)
	switch {
	case p == "" && r.Method == http.MethodGet:
		return "meta"
	case p == ":batchUpdate":
		return "batch"
	case strings.HasSuffix(p, ":append"):
		return "append"
	case strings.HasPrefix(p, "/values/") && r.Method == http.MethodPut:
		return "update"
	case strings.HasSuffix(p, "!1:1"):
		return "header"
	case strings.HasPrefix(p, "/values/"):
		return "read"
	}
	return "unknown"
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	op := f.route(r)
	f.calls = append(f.calls, fakeCall{Op: op, Method: r.Method, Path: r.URL.Path, Body: body})
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	if status, ok := f.fail[op]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"injected %s failure"}}`, status, op)
		return
	}

	switch op {
	case "meta":
		var sheets []map[string]any
		for _, s := range f.sheets {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"sheetId": s.ID, "title": s.Title}})
		}
		writeJSON(w, map[string]any{"sheets": sheets})
	case "read":
		writeJSON(w, map[string]any{"values": f.values})
	case "header":
		if len(f.values) == 0 {
			writeJSON(w, map[string]any{})
			return
		}
		writeJSON(w, map[string]any{"values": f.values[:1]})
	case "append":
		var vr gsheet.ValueRange
		_ = json.Unmarshal(body, &vr)
		f.values = append(f.values, vr.Values...)
		writeJSON(w, map[string]any{"spreadsheetId": testSpreadsheetID})
	case "update":
		var vr gsheet.ValueRange
		_ = json.Unmarshal(body, &vr)
		start := startColumn(r.URL.Path)
		if len(f.values) == 0 {
			f.values = append(f.values, []any{})
		}
		for i, v := range vr.Values[0] {
			col := start + i
			for len(f.values[0]) <= col {
				f.values[0] = append(f.values[0], "")
			}
			f.values[0][col] = v
		}
		writeJSON(w, map[string]any{"spreadsheetId": testSpreadsheetID})
	case "batch":
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.Unmarshal(body, &req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.sheets = append(f.sheets, sheetMeta{ID: int64(100 + len(f.sheets)), Title: rq.AddSheet.Properties.Title})
			}
			if rq.DeleteDimension != nil {
				i := int(rq.DeleteDimension.Range.StartIndex)
				if i < len(f.values) {
					f.values = append(f.values[:i], f.values[i+1:]...)
				}
			}
		}
		writeJSON(w, map[string]any{"spreadsheetId": testSpreadsheetID})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeSheets) callsFor(op string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSheets) writeCalls() []fakeCall {
	var out []fakeCall
	for _, op := range []string{"append", "update", "batch"} {
		out = append(out, f.callsFor(op)...)
	}
	return out
}

// startColumn reads the 0-based start column from a ".../values/'Log'!I1:K1" path.
func startColumn(path string) int {
	rng := path[strings.LastIndex(path, "!")+1:]
	n := 0
	for _, ch := range rng {
		if ch < 'A' || ch > 'Z' {
			break
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient(Options{Endpoint: srv.URL + "/", HTTPClient: srv.Client()})
}
