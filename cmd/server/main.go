package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/raditia/duet-media/internal/cleanup"
	"github.com/raditia/duet-media/internal/config"
	"github.com/raditia/duet-media/internal/handler"
	"github.com/raditia/duet-media/internal/mediastore"
	"github.com/raditia/duet-media/internal/quote"
	"github.com/raditia/duet-media/internal/router"
	"github.com/raditia/duet-media/internal/signing"
	"github.com/raditia/duet-media/internal/transform"
)

// toolEndpoints maps the dashboard's AI tool names onto their upstream
// endpoints.
func toolEndpoints() map[string]transform.Endpoint {
	return map[string]transform.Endpoint{
		"remove-background": {URL: "https://api.ryzumi.vip/api/ai/removebg"},
		"upscale":           {URL: "https://api.nekolabs.my.id/tools/upscale"},
		"generate":          {URL: "https://api.ryzumi.vip/api/ai/photo"},
	}
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	journal, err := cleanup.OpenJournal(cfg.JournalPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cleanup journal")
	}
	defer journal.Close()

	store := mediastore.NewClient(mediastore.ClientOptions{
		CloudName: cfg.CloudName,
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.AdminBaseURL,
		Logger:    logger,
	})

	issuer := signing.Issuer{
		APIKey:    cfg.APIKey,
		CloudName: cfg.CloudName,
		Secret:    cfg.APISecret,
	}

	uploader := mediastore.NewUploader(issuer, cfg.UploadBaseURL, nil)

	coordinator := cleanup.NewCoordinator(store, journal, logger)

	executor := transform.NewExecutor(nil, logger)
	executor.MaxAttempts = cfg.TransformMaxAttempts
	executor.InitialDelay = cfg.TransformInitialDelay

	pipeline := transform.NewPipeline(uploader, coordinator, executor, toolEndpoints(), logger)

	quotes := quote.NewService(
		quote.NewFetcher(cfg.QuoteURL, cfg.QuoteToken),
		quote.NewCache(cfg.QuoteTTL),
	)

	h := &handler.Handler{
		Issuer:   issuer,
		Store:    store,
		Pipeline: pipeline,
		Quote:    quotes,
		Config:   cfg,
		Logger:   logger,
	}

	// Pick up temp assets left behind by a previous run, then keep sweeping.
	ctx := context.Background()
	coordinator.Sweep(ctx)
	go coordinator.Run(ctx, cfg.SweepInterval)

	srv := router.New(h)

	logger.Info().Str("addr", cfg.ListenAddr).Msg("starting server")
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
