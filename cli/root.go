package cli

import (
	"context"
	"net"
	"time"

	"github.com/spf13/cobra"

	"macrolog"
	"macrolog/foodlog"
	"macrolog/oauth"
	"macrolog/settings"
)

type exchanger interface {
	Exchange(ctx context.Context, req oauth.ExchangeRequest) (oauth.ExchangeResponse, error)
}

// App carries the collaborators every command works against. The mains build one from
// configuration; tests build one from fakes.
type App struct {
	Settings *settings.Store
	FoodLog  *foodlog.FoodLog
	OAuth    macrolog.OAuthConfig
	// Exchanger trades authorization codes through the token proxy.
	Exchanger exchanger
	// Listen opens the local callback listener for `auth connect`.
	Listen func(addr string) (net.Listener, error)
	// OpenBrowser, when set, is handed the consent URL.
	OpenBrowser   func(url string) error
	Notifier      macrolog.Notifier
	NotifyChannel string
	Location      *time.Location
	Now           func() time.Time
	Prompts       PromptKit
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *App) loc() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}

// NewRootCmd assembles the command tree over app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "macrolog",
		Short:         "Log meals in plain language to a Google Sheet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("debug", false, "dump the food log state after the command")
	root.PersistentPostRun = func(cmd *cobra.Command, _ []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug && app.FoodLog != nil {
			macrolog.Dump(cmd.ErrOrStderr(), app.FoodLog.Snapshot())
		}
	}

	root.AddCommand(
		newAuthCmd(app),
		newConfigCmd(app),
		newLogCmd(app),
		newTodayCmd(app),
		newDeleteCmd(app),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, app *App) error {
	return NewRootCmd(app).ExecuteContext(ctx)
}
