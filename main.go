package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"rz-top100-srv/internal/artists"
	"rz-top100-srv/internal/chart"
	"rz-top100-srv/internal/config"
	"rz-top100-srv/internal/database"
	"rz-top100-srv/internal/ledger"
	"rz-top100-srv/internal/resolver"
	"rz-top100-srv/internal/web"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// 1. Load Configuration (Fail fast)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("CRITICAL: invalid configuration")
	}

	// 2. Database Setup
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open vote ledger")
	}
	defer db.Close()

	// 3. Initialize Long-Lived Spotify Client
	ctx := context.Background()
	creds := &clientcredentials.Config{
		ClientID:     cfg.SpotifyID,
		ClientSecret: cfg.SpotifySecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	spotifyClient := spotify.New(creds.Client(ctx))
	searcher := resolver.NewSpotifySearcher(spotifyClient, cfg.SpotifyMarket)

	// 4. Verified Artists (optional seed file)
	verified := artists.NewList(nil)
	if cfg.ArtistsCSV != "" {
		verified, err = artists.LoadCSV(cfg.ArtistsCSV)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ArtistsCSV).Msg("failed to load verified artists")
		}
		logger.Info().Int("names", verified.Len()).Msg("verified artists loaded")
	}

	// 5. Core Wiring
	res := resolver.New(searcher, verified, cfg.ResolutionCacheTTL, logger)
	led := ledger.New(db, res, cfg.Location, cfg.VoteLimitPerDay, logger)
	agg := chart.NewAggregator(db, cfg.ChartSize, logger)
	reader := chart.NewReader(db, cfg.Location)

	// 6. Daily Chart Scheduler
	sched := chart.NewScheduler(agg, cfg.Location, logger)
	sched.Start()
	defer sched.Stop()

	// 7. HTTP Server
	server := web.NewServer(led, agg, reader, cfg.AdminTOTPSecret, logger)
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("timezone", cfg.Timezone).Msg("vote service listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
