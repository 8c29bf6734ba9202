package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"

	"macrolog"
	"macrolog/api"
	"macrolog/parser"
)

func main() {
	ctx := context.Background()

	var (
		oauthConfig    macrolog.OAuthConfig
		providerConfig macrolog.ProviderConfig
		modelConfig    macrolog.ModelConfig
	)
	for _, c := range []any{&oauthConfig, &providerConfig, &modelConfig} {
		if err := envdecode.Decode(c); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}
	}

	otelShutdown, err := macrolog.InitOtel(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %s", err)
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	registryOpts := parser.RegistryOptions{Providers: providerConfig, Model: modelConfig}
	brc, err := newBedrockRuntimeClient(ctx)
	if err != nil {
		slog.Warn("SETUP: Bedrock unavailable", "error", err)
	} else {
		registryOpts.Bedrock = brc
	}

	handler := api.NewHandler(api.Options{
		TokenURL: oauthConfig.TokenURL,
		Parser:   parser.NewRegistry(registryOpts),
	})

	lambda.Start(handler.HandleLambda)
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
