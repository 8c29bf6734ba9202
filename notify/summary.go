package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"macrolog"
	"macrolog/entry"
	"macrolog/settings"
)

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = errors.New("notification webhook not configured")

// FormatDailySummary renders one message listing each meal and the day's totals, with
// progress against targets when any are set.
func FormatDailySummary(summary entry.DailySummary, groups []entry.MealGroup, targets *settings.MacroTargets) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Food log for %s*\n", summary.Date)
	if summary.EntryCount == 0 {
		b.WriteString("Nothing logged yet.")
		return b.String()
	}

	for _, g := range groups {
		fmt.Fprintf(&b, "• %s (%s): %.0f kcal\n", g.MealLabel, g.Time, g.Totals.Calories)
	}
	fmt.Fprintf(&b, "Total: %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat (%d entries)",
		summary.TotalCalories, summary.TotalProtein, summary.TotalCarbs, summary.TotalFat, summary.EntryCount)

	if targets != nil {
		fmt.Fprintf(&b, "\nTargets: %.0f/%.0f kcal, %.0f/%.0fg protein, %.0f/%.0fg carbs, %.0f/%.0fg fat",
			summary.TotalCalories, targets.Calories,
			summary.TotalProtein, targets.ProteinG,
			summary.TotalCarbs, targets.CarbsG,
			summary.TotalFat, targets.FatG)
	}
	return b.String()
}

// PostDailySummary formats and sends the summary through n.
func PostDailySummary(ctx context.Context, n macrolog.Notifier, channel string, summary entry.DailySummary, groups []entry.MealGroup, targets *settings.MacroTargets) error {
	if n == nil {
		return ErrNotConfigured
	}
	if err := n.PostMessage(ctx, channel, FormatDailySummary(summary, groups, targets)); err != nil {
		slog.Error("NOTIFY: failed to post daily summary", "date", summary.Date, "error", err)
		return err
	}
	slog.Info("NOTIFY: posted daily summary", "date", summary.Date, "entries", summary.EntryCount)
	return nil
}
