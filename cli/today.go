package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"macrolog/notify"
)

func newTodayCmd(app *App) *cobra.Command {
	return LeafCommand{
		Use:   "today",
		Short: "Show today's meals and totals",
		Args:  cobra.NoArgs,
		BoolFlags: []BoolFlag{
			{Name: "notify", Usage: "post the summary to the configured webhook"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			post, _ := cmd.Flags().GetBool("notify")
			return runToday(cmd, app, post)
		},
	}.Build()
}

func runToday(cmd *cobra.Command, app *App, post bool) error {
	if err := loadToday(cmd, app); err != nil {
		return err
	}

	s := app.FoodLog.Snapshot()
	targets := app.Settings.MacroTargets()
	renderDay(cmd.OutOrStdout(), app, s, targets)

	if post && s.Summary != nil {
		return notify.PostDailySummary(cmd.Context(), app.Notifier, app.NotifyChannel, *s.Summary, s.Groups, targets)
	}
	return nil
}

func loadToday(cmd *cobra.Command, app *App) error {
	if app.Settings.SpreadsheetID() == "" {
		return errors.New("no spreadsheet configured; run `macrolog config sheet`")
	}
	if err := app.FoodLog.LoadTodaysEntries(cmd.Context()); err != nil {
		if msg := app.FoodLog.Snapshot().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	return nil
}
