package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"macrolog/entry"
	"macrolog/oauth"
)

const callbackTimeout = 5 * time.Minute

func newAuthCmd(app *App) *cobra.Command {
	connect := LeafCommand{
		Use:   "connect",
		Short: "Authorize access to Google Sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(app.OAuth.RedirectURI)
			if err != nil {
				return fmt.Errorf("invalid redirect URI: %w", err)
			}
			listen := app.Listen
			if listen == nil {
				listen = func(addr string) (net.Listener, error) { return net.Listen("tcp", addr) }
			}
			ln, err := listen(u.Host)
			if err != nil {
				return fmt.Errorf("failed to listen for the OAuth callback: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), callbackTimeout)
			defer cancel()
			return runAuthConnect(ctx, cmd, app, ln, app.OAuth.RedirectURI)
		},
	}.Build()

	status := LeafCommand{
		Use:   "status",
		Short: "Show whether Google Sheets is connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd, app)
		},
	}.Build()

	disconnect := LeafCommand{
		Use:   "disconnect",
		Short: "Forget the stored Google tokens",
		Args:  cobra.NoArgs,
		BoolFlags: []BoolFlag{
			{Name: "yes", Usage: "skip confirmation prompt"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return runAuthDisconnect(cmd, app, ResolveConfirmFunc(yes, app.Prompts))
		},
	}.Build()

	return GroupCommand{
		Use:         "auth",
		Short:       "Manage the Google Sheets connection",
		Subcommands: []*cobra.Command{connect, status, disconnect},
	}.Build()
}

// runAuthConnect serves the redirect target on ln, sends the user to the consent screen and
// stores the token pair once the callback has been exchanged.
func runAuthConnect(ctx context.Context, cmd *cobra.Command, app *App, ln net.Listener, redirectURI string) error {
	clientID, clientSecret := app.Settings.GoogleCredentials()
	if clientID == "" || clientSecret == "" {
		_ = ln.Close()
		return errors.New("google client credentials are not set; run `macrolog config google` first")
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	flow := oauth.NewFlow(oauth.FlowConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthURL:      app.OAuth.AuthURL,
	}, app.Exchanger)

	mux := http.NewServeMux()
	mux.Handle(u.Path, flow)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("OAUTH: callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, err := flow.Start()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "%s\n%s\n", Text("Open this URL to authorize Google Sheets access:"), Info(authURL))
	if app.OpenBrowser != nil {
		if err := app.OpenBrowser(authURL); err != nil {
			slog.Warn("OAUTH: could not open browser", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("authorization was not completed: %w", ctx.Err())
	case res := <-flow.Results():
		if res.Err != nil {
			return res.Err
		}
		if err := app.Settings.SetTokens(ctx, res.Token.AccessToken, res.Token.RefreshToken, res.Token.ExpiresIn); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(w, "%s\n", Primary("Google Sheets connected."))
	return nil
}

func runAuthStatus(cmd *cobra.Command, app *App) error {
	w := cmd.OutOrStdout()
	tokens := app.Settings.Tokens()
	now := app.now()

	switch {
	case tokens.AccessToken == "" && tokens.RefreshToken == "":
		_, _ = fmt.Fprintf(w, "%s %s\n", Silent("Google:"), Warning("not connected"))
	case tokens.Usable(now):
		_, _ = fmt.Fprintf(w, "%s %s %s\n", Silent("Google:"), Primary("connected"),
			Silent(fmt.Sprintf("(token valid until %s)", entry.FormatLocalTime(tokens.Expiry, app.loc()))))
	case tokens.RefreshToken != "":
		_, _ = fmt.Fprintf(w, "%s %s\n", Silent("Google:"), Info("access token expired, will refresh on next use"))
	default:
		_, _ = fmt.Fprintf(w, "%s %s\n", Silent("Google:"), Error("expired, run `macrolog auth connect`"))
	}
	return nil
}

func runAuthDisconnect(cmd *cobra.Command, app *App, confirm ConfirmFunc) error {
	ok, err := confirm("Forget the stored Google tokens?")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}
	if err := app.Settings.ClearTokens(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", Text("Google tokens removed."))
	return nil
}
