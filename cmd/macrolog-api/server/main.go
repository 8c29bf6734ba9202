package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"macrolog"
	"macrolog/api"
	"macrolog/parser"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("SETUP: failed to load .env", "error", err)
	}

	var (
		serverConfig   macrolog.ServerConfig
		oauthConfig    macrolog.OAuthConfig
		providerConfig macrolog.ProviderConfig
	)
	for _, c := range []any{&serverConfig, &oauthConfig, &providerConfig} {
		if err := envdecode.Decode(c); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}
	}

	otelShutdown, err := macrolog.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	handler := api.NewHandler(api.Options{
		TokenURL: oauthConfig.TokenURL,
		Parser:   parser.NewRegistry(parser.RegistryOptions{Providers: providerConfig}),
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	srv := &http.Server{
		Addr:              serverConfig.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API: shutdown failed", "error", err)
		}
	}()

	slog.Info("API: listening", "addr", serverConfig.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("API: server failed", "error", err)
	}
}
