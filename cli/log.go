package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"macrolog/foodlog"
)

const (
	actConfirm = "Confirm"
	actRefine  = "Refine"
	actCancel  = "Cancel"
	actRetry   = "Retry"
	actDismiss = "Dismiss"
)

func newLogCmd(app *App) *cobra.Command {
	return LeafCommand{
		Use:   "log [WHAT YOU ATE]",
		Short: "Parse a meal description and log it",
		BoolFlags: []BoolFlag{
			{Name: "yes", Usage: "log the parsed meal without asking"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return runLog(cmd.Context(), cmd, app, strings.Join(args, " "), yes)
		},
	}.Build()
}

// runLog parses input and walks the user through confirm, refine or cancel. A failed write
// offers retry or dismiss; the parsed meal is never dropped silently.
func runLog(ctx context.Context, cmd *cobra.Command, app *App, input string, yes bool) error {
	if !app.Settings.IsConfigured() {
		return errors.New("macrolog is not configured; see `macrolog config show`")
	}
	kit := app.Prompts
	w := cmd.OutOrStdout()

	if strings.TrimSpace(input) == "" {
		if yes {
			return errors.New("nothing to log")
		}
		var err error
		if input, err = kit.Prompt("What did you eat?"); err != nil {
			return err
		}
	}

	fl := app.FoodLog
	if err := fl.Parse(ctx, input); err != nil {
		if msg := fl.Snapshot().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	renderPending(w, *fl.Snapshot().Pending)

	actions := []string{actConfirm, actRefine, actCancel}
	for {
		action := actConfirm
		if !yes {
			i, err := kit.Select("Log this meal?", actions)
			if err != nil {
				return err
			}
			action = actions[i]
		}

		switch action {
		case actConfirm, actRetry:
			pending := fl.Snapshot().Pending
			err := fl.Confirm(ctx)
			if err == nil {
				_, _ = fmt.Fprintf(w, "%s\n\n", Primary(fmt.Sprintf("Logged %d item(s) as %s.", len(pending.Items), pending.MealLabel)))
				renderDay(w, app, fl.Snapshot(), app.Settings.MacroTargets())
				return nil
			}
			var oe *foodlog.OpError
			if !errors.As(err, &oe) {
				return err
			}
			_, _ = fmt.Fprintf(w, "%s\n", Error(oe.Message))
			if yes || oe.IsAuthError {
				return oe
			}
			actions = []string{actRetry, actDismiss}

		case actRefine:
			instruction, err := kit.Prompt("What should change?")
			if err != nil {
				return err
			}
			if err := fl.Refine(ctx, instruction); err != nil {
				msg := fl.Snapshot().RefineError
				if msg == "" {
					msg = err.Error()
				}
				_, _ = fmt.Fprintf(w, "%s\n", Error(msg))
				continue
			}
			renderPending(w, *fl.Snapshot().Pending)

		case actCancel:
			fl.Cancel()
			_, _ = fmt.Fprintf(w, "%s\n", Silent("Cancelled."))
			return nil

		case actDismiss:
			fl.Dismiss()
			_, _ = fmt.Fprintf(w, "%s\n", Silent("Discarded."))
			return nil
		}
	}
}
