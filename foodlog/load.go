package foodlog

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"macrolog/entry"
)

// LoadTodaysEntries reads the whole log and keeps today's entries in timestamp order. It
// does nothing while no spreadsheet or access token is configured.
func (f *FoodLog) LoadTodaysEntries(ctx context.Context) (err error) {
	if err := f.begin(Loading); err != nil {
		return err
	}
	defer f.end()

	ctx, op := f.startOperation(ctx, "LoadTodaysEntries")
	defer func() { op.finish(ctx, err) }()

	return f.load(ctx)
}

func (f *FoodLog) load(ctx context.Context) error {
	spreadsheetID := f.session.SpreadsheetID()
	token := f.session.Tokens().AccessToken
	if spreadsheetID == "" || token == "" {
		slog.Info("FOODLOG: spreadsheet or token not configured, skipping load")
		return nil
	}

	f.update(func(s *State) { s.Error = "" })

	if err := f.store.EnsureLogSheet(ctx, spreadsheetID, token); err != nil {
		f.update(func(s *State) { s.Error = failure(err, false).Message })
		return err
	}
	all, err := f.store.ReadAllEntries(ctx, spreadsheetID, token)
	if err != nil {
		f.update(func(s *State) { s.Error = failure(err, false).Message })
		return err
	}

	view := buildDayView(all, f.now(), f.loc)
	f.update(func(s *State) {
		s.Entries = view.entries
		s.Groups = entry.GroupEntries(view.entries)
		s.Summary = &view.summary
		s.LastAte = view.lastAte
	})
	return nil
}

type dayView struct {
	entries []entry.LogEntry
	summary entry.DailySummary
	lastAte time.Time
}

// buildDayView filters all to the local calendar day of now, falling back to the stored
// date string for entries whose timestamp cannot be rebuilt, and sorts them by time.
// lastAte is taken across every date.
func buildDayView(all []entry.LogEntry, now time.Time, loc *time.Location) dayView {
	today := entry.FormatLocalDate(now, loc)

	type stamped struct {
		e  entry.LogEntry
		at time.Time
		ok bool
	}

	var (
		view dayView
		day  []stamped
	)
	for _, e := range all {
		at, ok := entry.ParseEntryTimestamp(e, loc)
		if ok && at.After(view.lastAte) {
			view.lastAte = at
		}

		onToday := e.Date == today
		if ok {
			onToday = entry.FormatLocalDate(at, loc) == today
		}
		if onToday {
			day = append(day, stamped{e: e, at: at, ok: ok})
		}
	}

	// Undatable entries keep their stored order after the dated ones.
	slices.SortStableFunc(day, func(a, b stamped) int {
		switch {
		case a.ok && b.ok:
			return a.at.Compare(b.at)
		case a.ok:
			return -1
		case b.ok:
			return 1
		}
		return 0
	})

	view.entries = make([]entry.LogEntry, 0, len(day))
	for _, s := range day {
		view.entries = append(view.entries, s.e)
	}
	view.summary = entry.Summarize(today, view.entries)
	return view
}
