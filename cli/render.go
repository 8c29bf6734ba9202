package cli

import (
	"fmt"
	"io"

	"macrolog"
	"macrolog/entry"
	"macrolog/foodlog"
	"macrolog/settings"
)

func renderPending(w io.Writer, res macrolog.ParseResult) {
	_, _ = fmt.Fprintf(w, "%s\n", Header(res.MealLabel))
	var total entry.Macros
	for _, it := range res.Items {
		_, _ = fmt.Fprintf(w, "  %-28s %s\n", it.Description, macroLine(it.Calories, it.ProteinG, it.CarbsG, it.FatG))
		if it.Warning != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", Warning(it.Warning))
		}
		total.Calories += it.Calories
		total.ProteinG += it.ProteinG
		total.CarbsG += it.CarbsG
		total.FatG += it.FatG
	}
	if len(res.Items) > 1 {
		_, _ = fmt.Fprintf(w, "  %-28s %s\n", Silent("Total"), macroLine(total.Calories, total.ProteinG, total.CarbsG, total.FatG))
	}
}

// renderDay prints today's meals, the running totals against targets and when the user
// last ate.
func renderDay(w io.Writer, app *App, s foodlog.State, targets *settings.MacroTargets) {
	if len(s.Groups) == 0 {
		_, _ = fmt.Fprintf(w, "%s\n", Silent("Nothing logged today."))
	}
	for _, g := range s.Groups {
		_, _ = fmt.Fprintf(w, "%s %s %s\n", Header(g.MealLabel), Silent(g.Time), Silent("["+g.GroupID+"]"))
		for _, it := range g.Items {
			_, _ = fmt.Fprintf(w, "  %s %-24s %s\n", Silent(fmt.Sprintf("#%-3d", it.SheetRow)), it.Description,
				macroLine(it.Calories, it.ProteinG, it.CarbsG, it.FatG))
		}
	}

	if s.Summary != nil {
		sum := s.Summary
		_, _ = fmt.Fprintf(w, "\n%s %s\n", Header("Today:"), macroLine(sum.TotalCalories, sum.TotalProtein, sum.TotalCarbs, sum.TotalFat))
		if targets != nil {
			_, _ = fmt.Fprintf(w, "%s %s, %s, %s, %s\n", Header("Targets:"),
				progress(sum.TotalCalories, targets.Calories, " kcal"),
				progress(sum.TotalProtein, targets.ProteinG, "g protein"),
				progress(sum.TotalCarbs, targets.CarbsG, "g carbs"),
				progress(sum.TotalFat, targets.FatG, "g fat"))
		}
	}

	if !s.LastAte.IsZero() {
		when := entry.FormatRelativeDate(s.LastAte, app.now(), app.loc())
		_, _ = fmt.Fprintf(w, "%s %s at %s\n", Silent("Last ate:"), when, entry.FormatLocalTime(s.LastAte, app.loc()))
	}
}

func macroLine(cal, protein, carbs, fat float64) string {
	return fmt.Sprintf("%s  P %.1fg  C %.1fg  F %.1fg", Primary(fmt.Sprintf("%4.0f kcal", cal)), protein, carbs, fat)
}

func progress(got, target float64, unit string) string {
	s := fmt.Sprintf("%.0f/%.0f%s", got, target, unit)
	if target > 0 && got > target {
		return Warning(s)
	}
	return s
}
