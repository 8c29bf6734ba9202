package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"macrolog"
	"macrolog/cli"
	"macrolog/foodlog"
	"macrolog/notify"
	"macrolog/oauth"
	"macrolog/parser"
	"macrolog/settings"
	"macrolog/sheets"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, cli.Error(err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("SETUP: failed to load .env", "error", err)
	}

	var (
		modelConfig    macrolog.ModelConfig
		providerConfig macrolog.ProviderConfig
		sheetsConfig   macrolog.SheetsConfig
		oauthConfig    macrolog.OAuthConfig
		settingsConfig macrolog.SettingsConfig
		notifyConfig   macrolog.NotifyConfig
	)
	for _, c := range []any{&modelConfig, &providerConfig, &sheetsConfig, &oauthConfig, &settingsConfig, &notifyConfig} {
		if err := envdecode.Decode(c); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}
	}

	otelShutdown, err := macrolog.InitOtel(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	backend, err := newSettingsBackend(ctx, settingsConfig)
	if err != nil {
		return err
	}
	storeOpts := settings.Options{Backend: backend}
	if settingsConfig.UseKeyring {
		storeOpts.KeyringService = settingsConfig.KeyringService
	}
	store, err := settings.Open(ctx, storeOpts)
	if err != nil {
		return err
	}

	logger, cleanup, err := newOperationLogger(settingsConfig.OperationLog)
	if err != nil {
		return fmt.Errorf("failed to create operation logger: %w", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush operation log", "error", err)
		}
	}()

	registryOpts := parser.RegistryOptions{Providers: providerConfig, Model: modelConfig}
	if brc, err := newBedrockRuntimeClient(ctx); err == nil {
		registryOpts.Bedrock = brc
	} else {
		slog.Warn("SETUP: Bedrock unavailable", "error", err)
	}

	proxy := oauth.NewClient(oauthConfig.ProxyBaseURL, nil)
	fl := foodlog.New(foodlog.Options{
		Session:   store,
		Parser:    parser.NewRegistry(registryOpts),
		Store:     sheets.NewClientFromConfig(sheetsConfig),
		Refresher: proxy,
		Logger:    logger,
	})

	app := &cli.App{
		Settings:      store,
		FoodLog:       fl,
		OAuth:         oauthConfig,
		Exchanger:     proxy,
		OpenBrowser:   openBrowser,
		NotifyChannel: notifyConfig.Channel,
		Prompts:       cli.NewPromptKit(),
	}
	if notifyConfig.WebhookURL != "" {
		app.Notifier = notify.NewWebhookFromConfig(notifyConfig)
	}

	return cli.Execute(ctx, app)
}

func newSettingsBackend(ctx context.Context, cfg macrolog.SettingsConfig) (settings.Backend, error) {
	if cfg.S3Bucket == "" {
		return settings.NewFileBackend(cfg.Path), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return settings.NewS3Backend(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Key), nil
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// newOperationLogger writes one JSON record per food log operation to path. "-" means
// stdout and an empty path discards them.
func newOperationLogger(path string) (macrolog.OperationLogger, func() error, error) {
	switch path {
	case "":
		return macrolog.NewNoOpOperationLogger(), func() error { return nil }, nil
	case "-":
		return macrolog.NewStdoutOperationLogger(), func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	logger := macrolog.NewFileOperationLogger(f)
	cleanup := func() error {
		if err := logger.Flush(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return logger, cleanup, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
