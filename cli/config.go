package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"macrolog/parser"
	"macrolog/settings"
)

func newConfigCmd(app *App) *cobra.Command {
	show := LeafCommand{
		Use:   "show",
		Short: "Show the current settings with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, app)
		},
	}.Build()

	sheet := LeafCommand{
		Use:   "sheet SPREADSHEET_ID",
		Short: "Set the spreadsheet entries are logged to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSheet(cmd, app, args[0])
		},
	}.Build()

	google := LeafCommand{
		Use:   "google CLIENT_ID [CLIENT_SECRET]",
		Short: "Set the Google OAuth client credentials",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := ""
			if len(args) == 2 {
				secret = args[1]
			}
			return runConfigGoogle(cmd, app, args[0], secret)
		},
	}.Build()

	targets := LeafCommand{
		Use:   "targets [CALORIES PROTEIN CARBS FAT]",
		Short: "Set daily macro targets",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 4 {
				return fmt.Errorf("expected 4 values (calories, protein, carbs, fat), got %d", len(args))
			}
			return nil
		},
		BoolFlags: []BoolFlag{
			{Name: "clear", Usage: "remove the targets"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("clear")
			return runConfigTargets(cmd, app, args, reset)
		},
	}.Build()

	return GroupCommand{
		Use:         "config",
		Short:       "Manage settings",
		Subcommands: []*cobra.Command{show, sheet, google, newProviderCmd(app), targets},
	}.Build()
}

func newProviderCmd(app *App) *cobra.Command {
	add := LeafCommand{
		Use:   "add PROVIDER [API_KEY]",
		Short: "Add an AI provider (claude, openai, gemini, bedrock, ollama, mock)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			return runProviderAdd(cmd, app, args[0], key)
		},
	}.Build()

	remove := LeafCommand{
		Use:   "remove PROVIDER",
		Short: "Remove an AI provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProviderRemove(cmd, app, args[0])
		},
	}.Build()

	use := LeafCommand{
		Use:   "use PROVIDER",
		Short: "Make a configured provider the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProviderUse(cmd, app, args[0])
		},
	}.Build()

	return GroupCommand{
		Use:         "provider",
		Short:       "Manage AI providers",
		Subcommands: []*cobra.Command{add, remove, use},
	}.Build()
}

func runConfigShow(cmd *cobra.Command, app *App) error {
	d := app.Settings.Snapshot()
	w := cmd.OutOrStdout()

	row := func(label, value string) {
		_, _ = fmt.Fprintf(w, "%s %s\n", Silent(fmt.Sprintf("%-16s", label+":")), value)
	}

	if len(d.AIProviders) == 0 {
		row("Providers", Warning("none"))
	}
	for _, k := range d.AIProviders {
		name := string(k.Provider)
		if k.Provider == d.ActiveProvider {
			name = Primary(name + " (active)")
		}
		row("Provider", fmt.Sprintf("%s %s", name, Silent(mask(k.APIKey))))
	}
	row("Google client", orUnset(d.GoogleClientID))
	row("Client secret", orUnset(mask(d.GoogleClientSecret)))
	row("Spreadsheet", orUnset(d.SpreadsheetID))
	if app.Settings.IsGoogleConnected() {
		row("Google", Primary("connected"))
	} else {
		row("Google", Warning("not connected"))
	}
	if t := d.MacroTargets; t != nil {
		row("Targets", fmt.Sprintf("%.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat", t.Calories, t.ProteinG, t.CarbsG, t.FatG))
	}
	if !app.Settings.IsConfigured() {
		_, _ = fmt.Fprintf(w, "%s\n", Warning("Setup incomplete: a provider, Google credentials and a spreadsheet are required."))
	}
	return nil
}

func runConfigSheet(cmd *cobra.Command, app *App, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("spreadsheet id must not be empty")
	}
	if err := app.Settings.SetSpreadsheetID(cmd.Context(), id); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", Text(fmt.Sprintf("spreadsheet set to %s", Primary(id))))
	return nil
}

func runConfigGoogle(cmd *cobra.Command, app *App, clientID, clientSecret string) error {
	if strings.TrimSpace(clientSecret) == "" {
		var err error
		clientSecret, err = app.Prompts.Secret("Google client secret")
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return fmt.Errorf("client id and secret are both required")
	}
	if err := app.Settings.SetGoogleCredentials(cmd.Context(), clientID, clientSecret); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", Text("Google client credentials saved."))
	return nil
}

func runConfigTargets(cmd *cobra.Command, app *App, args []string, reset bool) error {
	w := cmd.OutOrStdout()
	if reset {
		if err := app.Settings.SetMacroTargets(cmd.Context(), nil); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\n", Text("macro targets cleared"))
		return nil
	}
	if len(args) != 4 {
		return fmt.Errorf("expected calories, protein, carbs and fat")
	}

	names := []string{"calories", "protein", "carbs", "fat"}
	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid %s target %q", names[i], a)
		}
		values[i] = v
	}

	t := &settings.MacroTargets{Calories: values[0], ProteinG: values[1], CarbsG: values[2], FatG: values[3]}
	if err := app.Settings.SetMacroTargets(cmd.Context(), t); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%s\n", Text(fmt.Sprintf("targets set to %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat", t.Calories, t.ProteinG, t.CarbsG, t.FatG)))
	return nil
}

func runProviderAdd(cmd *cobra.Command, app *App, name, apiKey string) error {
	p, err := parser.ParseProvider(name)
	if err != nil {
		return err
	}
	if p.NeedsAPIKey() && strings.TrimSpace(apiKey) == "" {
		apiKey, err = app.Prompts.Secret(fmt.Sprintf("%s API key", p))
		if err != nil {
			return err
		}
	}
	if err := app.Settings.AddProvider(cmd.Context(), p, apiKey); err != nil {
		return err
	}
	active, _ := app.Settings.ActiveProvider()
	msg := fmt.Sprintf("provider %s added", Primary(string(p)))
	if active == p {
		msg += " (active)"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", Text(msg))
	return nil
}

func runProviderRemove(cmd *cobra.Command, app *App, name string) error {
	p, err := parser.ParseProvider(name)
	if err != nil {
		return err
	}
	if err := app.Settings.RemoveProvider(cmd.Context(), p); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", Text(fmt.Sprintf("provider %s removed", Primary(string(p)))))
	return nil
}

func runProviderUse(cmd *cobra.Command, app *App, name string) error {
	p, err := parser.ParseProvider(name)
	if err != nil {
		return err
	}
	if err := app.Settings.SetActiveProvider(cmd.Context(), p); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", Text(fmt.Sprintf("using %s", Primary(string(p)))))
	return nil
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func orUnset(s string) string {
	if s == "" {
		return Warning("not set")
	}
	return s
}
