package foodlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"macrolog"
	"macrolog/entry"
	"macrolog/oauth"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	reauthorizeMessage = "Google authorization expired. Please re-authorize with `macrolog auth connect`."
	rateLimitMessage   = "Rate limited by Google Sheets. Please wait and try again."
	unavailableMessage = "Google Sheets is unavailable. Please try again later."
)

// Confirm appends the pending meal to the sheet as one group and reloads today's entries.
// An expired access token is refreshed once and the write retried once. On any failure
// the pending meal is kept so nothing parsed is lost.
func (f *FoodLog) Confirm(ctx context.Context) (err error) {
	if err := f.begin(Writing); err != nil {
		return err
	}
	defer f.end()

	ctx, op := f.startOperation(ctx, "Confirm")
	defer func() { op.finish(ctx, err) }()

	var (
		pending  *macrolog.ParseResult
		rawInput string
	)
	f.update(func(s *State) {
		s.WriteError = nil
		pending, rawInput = s.Pending, s.RawInput
	})
	if pending == nil {
		return ErrNoPendingResult
	}

	spreadsheetID := f.session.SpreadsheetID()
	if spreadsheetID == "" {
		oe := &OpError{Message: "No spreadsheet configured.", Err: &macrolog.ValidationError{Field: "spreadsheetId", Message: "must not be empty"}}
		f.update(func(s *State) { s.WriteError = oe })
		return oe
	}
	if len(pending.Items) == 0 {
		oe := &OpError{Message: "Nothing to log.", Err: &macrolog.ValidationError{Field: "items", Message: "must not be empty"}}
		f.update(func(s *State) { s.WriteError = oe })
		return oe
	}

	entries := f.buildEntries(*pending, rawInput)
	refreshed, err := f.withRefresh(ctx, op, func(ctx context.Context, token string) error {
		if err := f.store.EnsureLogSheet(ctx, spreadsheetID, token); err != nil {
			return err
		}
		return f.store.WriteEntries(ctx, spreadsheetID, token, entries)
	})
	if err != nil {
		oe := failure(err, refreshed)
		f.update(func(s *State) { s.WriteError = oe })
		return oe
	}

	op.log.Rows = len(entries)
	op.log.Detail = map[string]any{"group_id": entries[0].GroupID, "meal_label": entries[0].MealLabel}
	f.metrics.rowsAdded.Add(ctx, int64(len(entries)))
	f.update(func(s *State) {
		s.Pending = nil
		s.RawInput = ""
		s.Refinements = nil
		s.WriteError = nil
	})

	f.setStatus(Loading)
	if lerr := f.load(ctx); lerr != nil {
		slog.Warn("FOODLOG: reload after write failed", "error", lerr)
	}
	return nil
}

// Retry re-runs Confirm after a write error.
func (f *FoodLog) Retry(ctx context.Context) error {
	return f.Confirm(ctx)
}

// DeleteGroup removes every row of one meal group from the most recent load. Ungrouped
// entries are addressed by their "ungrouped-<n>" key.
func (f *FoodLog) DeleteGroup(ctx context.Context, groupID string) (err error) {
	if err := f.begin(Deleting); err != nil {
		return err
	}
	defer f.end()

	ctx, op := f.startOperation(ctx, "DeleteGroup")
	defer func() { op.finish(ctx, err) }()

	var rows []int
	f.update(func(s *State) {
		s.DeleteError = nil
		for _, g := range entry.GroupEntries(s.Entries) {
			if g.GroupID == groupID {
				rows = g.Rows()
				break
			}
		}
	})
	if len(rows) == 0 {
		return f.deleteRejected(fmt.Sprintf("meal %q is not in the current view", groupID))
	}
	op.log.Detail = map[string]any{"group_id": groupID}
	return f.deleteRows(ctx, op, rows)
}

// DeleteEntry removes a single row from the most recent load.
func (f *FoodLog) DeleteEntry(ctx context.Context, sheetRow int) (err error) {
	if err := f.begin(Deleting); err != nil {
		return err
	}
	defer f.end()

	ctx, op := f.startOperation(ctx, "DeleteEntry")
	defer func() { op.finish(ctx, err) }()

	var known bool
	f.update(func(s *State) {
		s.DeleteError = nil
		known = slices.ContainsFunc(s.Entries, func(e entry.LogEntry) bool { return e.SheetRow == sheetRow })
	})
	if !known {
		return f.deleteRejected(fmt.Sprintf("row %d is not in the current view", sheetRow))
	}
	return f.deleteRows(ctx, op, []int{sheetRow})
}

func (f *FoodLog) deleteRejected(msg string) error {
	oe := &OpError{Message: msg, Err: &macrolog.ValidationError{Field: "target", Message: msg}}
	f.update(func(s *State) { s.DeleteError = oe })
	return oe
}

func (f *FoodLog) deleteRows(ctx context.Context, op *operation, rows []int) error {
	spreadsheetID := f.session.SpreadsheetID()
	refreshed, err := f.withRefresh(ctx, op, func(ctx context.Context, token string) error {
		return f.store.DeleteEntries(ctx, spreadsheetID, token, rows)
	})
	if err != nil {
		oe := failure(err, refreshed)
		f.update(func(s *State) { s.DeleteError = oe })
		return oe
	}

	op.log.Rows = len(rows)
	f.metrics.rowsGone.Add(ctx, int64(len(rows)))

	f.setStatus(Loading)
	if lerr := f.load(ctx); lerr != nil {
		slog.Warn("FOODLOG: reload after delete failed", "error", lerr)
	}
	return nil
}

// withRefresh runs call with the session's access token. When the token is rejected and a
// refresh token exists, it refreshes exactly once and runs call a second time. It never
// loops. refreshed reports whether the refresh path was taken.
func (f *FoodLog) withRefresh(ctx context.Context, op *operation, call func(ctx context.Context, token string) error) (refreshed bool, err error) {
	tokens := f.session.Tokens()
	err = call(ctx, tokens.AccessToken)
	if err == nil || !macrolog.IsAuthError(err) || tokens.RefreshToken == "" {
		return false, err
	}

	slog.Info("FOODLOG: access token rejected, refreshing", "operation", op.name)
	token, err := f.refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return true, err
	}
	op.log.Refreshed = true
	op.log.Attempts = 2
	f.metrics.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op.name)))

	return true, call(ctx, token)
}

func (f *FoodLog) refresh(ctx context.Context, refreshToken string) (string, error) {
	clientID, clientSecret := f.session.GoogleCredentials()
	resp, err := f.refresher.Refresh(ctx, oauth.RefreshRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	if err := f.session.UpdateAccessToken(ctx, resp.AccessToken, resp.ExpiresIn); err != nil {
		return "", err
	}
	f.metrics.refreshes.Add(ctx, 1)
	return resp.AccessToken, nil
}

func (f *FoodLog) buildEntries(pending macrolog.ParseResult, rawInput string) []entry.LogEntry {
	date, clock, offset := entry.Stamp(f.now(), f.loc)
	groupID := f.groupID()
	label := pending.MealLabel
	if label == "" {
		label = macrolog.DefaultMealLabel
	}

	entries := make([]entry.LogEntry, 0, len(pending.Items))
	for _, it := range pending.Items {
		entries = append(entries, entry.LogEntry{
			Date:        date,
			Time:        clock,
			Description: it.Description,
			Calories:    it.Calories,
			ProteinG:    it.ProteinG,
			CarbsG:      it.CarbsG,
			FatG:        it.FatG,
			RawInput:    rawInput,
			GroupID:     groupID,
			MealLabel:   label,
			UTCOffset:   offset,
		})
	}
	return entries
}

// failure turns a write or delete error into the message shown to the user. Anything that
// failed after a refresh attempt asks for re-authorization.
func failure(err error, refreshed bool) *OpError {
	var ne *macrolog.NetworkError
	switch {
	case refreshed, macrolog.IsAuthError(err):
		return &OpError{Message: reauthorizeMessage, IsAuthError: true, Err: err}
	case macrolog.IsRateLimited(err):
		return &OpError{Message: rateLimitMessage, IsRateLimited: true, Err: err}
	case errors.As(err, &ne):
		return &OpError{Message: unavailableMessage, Err: err}
	}
	return &OpError{Message: err.Error(), Err: err}
}
