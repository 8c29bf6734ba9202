package sheets

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"macrolog/entry"
)

// Schema is the ordered header row of the log sheet. Positions already in use never
// change; new columns are only ever appended.
var Schema = []string{
	"Date",
	"Time",
	"Description",
	"Calories",
	"Protein (g)",
	"Carbs (g)",
	"Fat (g)",
	"Raw Input",
	"Group ID",
	"Meal Label",
	"UTC Offset",
}

// ColumnLetter converts a 1-based column number to its sheet letters: 1 is A, 26 is Z, 27 is AA.
func ColumnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func lastColumn() string {
	return ColumnLetter(len(Schema))
}

// field binds one schema column to a LogEntry field.
type field struct {
	get func(e entry.LogEntry) any
	set func(e *entry.LogEntry, cell string)
}

func text(p func(e *entry.LogEntry) *string) field {
	return field{
		get: func(e entry.LogEntry) any { return *p(&e) },
		set: func(e *entry.LogEntry, cell string) { *p(e) = cell },
	}
}

func number(p func(e *entry.LogEntry) *float64) field {
	return field{
		get: func(e entry.LogEntry) any { return *p(&e) },
		set: func(e *entry.LogEntry, cell string) { *p(e) = parseNumber(cell) },
	}
}

var fields = map[string]field{
	"Date":        text(func(e *entry.LogEntry) *string { return &e.Date }),
	"Time":        text(func(e *entry.LogEntry) *string { return &e.Time }),
	"Description": text(func(e *entry.LogEntry) *string { return &e.Description }),
	"Calories":    number(func(e *entry.LogEntry) *float64 { return &e.Calories }),
	"Protein (g)": number(func(e *entry.LogEntry) *float64 { return &e.ProteinG }),
	"Carbs (g)":   number(func(e *entry.LogEntry) *float64 { return &e.CarbsG }),
	"Fat (g)":     number(func(e *entry.LogEntry) *float64 { return &e.FatG }),
	"Raw Input":   text(func(e *entry.LogEntry) *string { return &e.RawInput }),
	"Group ID":    text(func(e *entry.LogEntry) *string { return &e.GroupID }),
	"Meal Label":  text(func(e *entry.LogEntry) *string { return &e.MealLabel }),
	"UTC Offset":  text(func(e *entry.LogEntry) *string { return &e.UTCOffset }),
}

// parseNumber never fails: unparseable, NaN and infinite cells read as 0.
func parseNumber(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// encodeRow lays an entry out in canonical schema order.
func encodeRow(e entry.LogEntry) []any {
	row := make([]any, len(Schema))
	for i, name := range Schema {
		f, ok := fields[name]
		if !ok {
			row[i] = ""
			continue
		}
		row[i] = f.get(e)
	}
	return row
}

// decodeRows maps data rows through the observed header. Columns the schema does not know
// are ignored and schema columns missing from the header keep their zero value.
func decodeRows(values [][]any) []entry.LogEntry {
	if len(values) < 2 {
		return []entry.LogEntry{}
	}

	header := cellStrings(values[0])
	index := make(map[int]field, len(header))
	for i, name := range header {
		if f, ok := fields[name]; ok {
			index[i] = f
		}
	}

	out := make([]entry.LogEntry, 0, len(values)-1)
	for r, raw := range values[1:] {
		cells := cellStrings(raw)
		e := entry.LogEntry{SheetRow: r}
		for i, f := range index {
			if i < len(cells) {
				f.set(&e, cells[i])
			}
		}
		out = append(out, e)
	}
	return out
}

func cellStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

// checkHeader compares an existing header against the schema over the shared prefix and
// returns the 0-based position of the first mismatch, or -1.
func checkHeader(existing []string) int {
	n := min(len(existing), len(Schema))
	for i := 0; i < n; i++ {
		if existing[i] != Schema[i] {
			return i
		}
	}
	return -1
}
