package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"macrolog/entry"
)

func newDeleteCmd(app *App) *cobra.Command {
	yesFlag := []BoolFlag{{Name: "yes", Usage: "skip confirmation prompt"}}

	group := LeafCommand{
		Use:       "group GROUP_ID",
		Short:     "Delete every item of one of today's meals",
		Args:      cobra.ExactArgs(1),
		BoolFlags: yesFlag,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return runDeleteGroup(cmd, app, args[0], ResolveConfirmFunc(yes, app.Prompts))
		},
	}.Build()

	row := LeafCommand{
		Use:       "row ROW",
		Short:     "Delete a single item of today's log by its row number",
		Args:      cobra.ExactArgs(1),
		BoolFlags: yesFlag,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid row %q", args[0])
			}
			yes, _ := cmd.Flags().GetBool("yes")
			return runDeleteRow(cmd, app, n, ResolveConfirmFunc(yes, app.Prompts))
		},
	}.Build()

	return GroupCommand{
		Use:         "delete",
		Short:       "Delete logged entries",
		Subcommands: []*cobra.Command{group, row},
	}.Build()
}

func runDeleteGroup(cmd *cobra.Command, app *App, groupID string, confirm ConfirmFunc) error {
	if err := loadToday(cmd, app); err != nil {
		return err
	}

	var target *entry.MealGroup
	for _, g := range app.FoodLog.Snapshot().Groups {
		if g.GroupID == groupID {
			target = &g
			break
		}
	}
	if target == nil {
		return fmt.Errorf("meal '%s' not found in today's log", groupID)
	}

	ok, err := confirm(fmt.Sprintf("Delete %s at %s (%d item(s), %.0f kcal)?", target.MealLabel, target.Time, len(target.Items), target.Totals.Calories))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}

	if err := app.FoodLog.DeleteGroup(cmd.Context(), groupID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", Text(fmt.Sprintf("meal '%s' deleted", Primary(target.MealLabel))))
	renderDay(cmd.OutOrStdout(), app, app.FoodLog.Snapshot(), app.Settings.MacroTargets())
	return nil
}

func runDeleteRow(cmd *cobra.Command, app *App, row int, confirm ConfirmFunc) error {
	if err := loadToday(cmd, app); err != nil {
		return err
	}

	var target *entry.LogEntry
	for _, e := range app.FoodLog.Snapshot().Entries {
		if e.SheetRow == row {
			target = &e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("row %d not found in today's log", row)
	}

	ok, err := confirm(fmt.Sprintf("Delete %s (%.0f kcal)?", target.Description, target.Calories))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}

	if err := app.FoodLog.DeleteEntry(cmd.Context(), row); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", Text(fmt.Sprintf("'%s' deleted", Primary(target.Description))))
	renderDay(cmd.OutOrStdout(), app, app.FoodLog.Snapshot(), app.Settings.MacroTargets())
	return nil
}
