package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dramastream/backend/internal/api"
	"github.com/dramastream/backend/internal/config"
	"github.com/dramastream/backend/internal/dailymotion"
	"github.com/dramastream/backend/internal/extractor"
	"github.com/dramastream/backend/internal/health"
	"github.com/dramastream/backend/internal/logger"
	"github.com/dramastream/backend/internal/metrics"
	"github.com/dramastream/backend/internal/resolver"
	"github.com/dramastream/backend/internal/streamer"
	"github.com/dramastream/backend/internal/validators"
)

var version = "dev"

func main() {
	cfg := config.Load()

	log := logger.New(os.Stdout, logger.ParseLevel(os.Getenv("LOG_LEVEL")), "server")
	logger.SetDefault(log)

	client := dailymotion.NewClient(dailymotion.Options{
		APIBaseURL:      cfg.APIBaseURL,
		MetadataBaseURL: cfg.MetadataBaseURL,
		UserAgent:       cfg.UserAgent,
		AcceptLanguage:  cfg.AcceptLanguage,
		SearchHint:      cfg.SearchHint,
		SearchLimit:     cfg.SearchLimit,
		MinDurationMins: cfg.MinDurationMins,
	})

	registry := validators.DefaultRegistry()
	m := metrics.New()

	searchService := resolver.NewService(client, cfg.WebSearchURL, resolver.Options{
		Timeout:    cfg.SearchTimeout,
		SearchHint: cfg.SearchHint,
		Limit:      cfg.SearchLimit,
	}, m)

	extractService := extractor.NewService(client, registry, extractor.Options{
		MetadataTimeout:  cfg.MetadataTimeout,
		ManifestTimeout:  cfg.ManifestTimeout,
		MetadataAttempts: cfg.MetadataAttempts,
		ManifestAttempts: cfg.ManifestAttempts,
		BackoffStep:      cfg.BackoffStep,
	})

	streamService := streamer.NewService(client, m, streamer.Options{
		MetadataTimeout:  cfg.MetadataTimeout,
		ManifestTimeout:  cfg.ManifestTimeout,
		SegmentTimeout:   cfg.SegmentTimeout,
		MetadataAttempts: cfg.MetadataAttempts,
		ManifestAttempts: cfg.ManifestAttempts,
		PlaylistAttempts: cfg.PlaylistAttempts,
		SegmentAttempts:  cfg.SegmentAttempts,
		BackoffStep:      cfg.BackoffStep,
	})

	checker := health.NewChecker(&health.CheckerConfig{
		SearchCheck:   upstreamProbe(client, cfg.APIBaseURL+"/videos?limit=1"),
		MetadataCheck: upstreamProbe(client, cfg.MetadataBaseURL),
		Version:       version,
	})

	router := api.NewRouter(api.Deps{
		Search:         resolver.NewHandler(searchService, registry),
		Video:          extractor.NewHandler(extractService),
		Download:       streamer.NewHandler(streamService),
		Health:         health.NewHandler(checker),
		Metrics:        m,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// No WriteTimeout: downloads run as long as the segment list is long.
	// Per-hop deadlines inside the streamer bound each upstream read instead.
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(context.Background(), "server listening", map[string]interface{}{
			"addr":    cfg.ServerAddr,
			"version": version,
		})
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error(context.Background(), "server failed", err, nil)
		os.Exit(1)
	case sig := <-stop:
		log.Info(context.Background(), "shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "graceful shutdown failed", err, nil)
		os.Exit(1)
	}
}

// upstreamProbe reports an upstream endpoint as healthy when it answers with
// anything below 500. Rate-limit and auth rejections still mean reachable.
func upstreamProbe(client *dailymotion.Client, url string) health.CheckFunc {
	return func(ctx context.Context) error {
		resp, err := client.Get(ctx, url)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream answered %d", resp.StatusCode)
		}
		return nil
	}
}
