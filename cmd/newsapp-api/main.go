package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pevans/newsapp/api"
	"github.com/pevans/newsapp/config"
	"github.com/pevans/newsapp/decoder"
	"github.com/pevans/newsapp/diagnostics"
	"github.com/pevans/newsapp/fetcher"
	"github.com/pevans/newsapp/loader"
	"github.com/pevans/newsapp/logging"
	"github.com/pevans/newsapp/newsfeed"
)

func main() {
	log := logging.New("newsapp-api")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	addr := flag.String("addr", cfg.API.Addr, "Listen address (NEWSAPP_API_ADDR)")
	refresh := flag.Duration("refresh", cfg.RefreshInterval(), "Interval between loads")
	keep := flag.Int("keep-loads", 1000, "Load history rows kept at startup (0 keeps none, -1 keeps all)")
	flag.Parse()

	log.WithField("dir", cfg.Storage.FeedDir).Info("Opening news feed")
	feed, err := newsfeed.NewNewsFeed(cfg.Storage.FeedDir)
	if err != nil {
		log.WithError(err).Fatal("Failed to open news feed")
	}

	log.WithField("dsn", cfg.Storage.DiagnosticsDSN).Info("Opening load history")
	history, err := diagnostics.NewStore(cfg.Storage.DiagnosticsDSN)
	if err != nil {
		log.WithError(err).Fatal("Failed to open load history")
	}
	defer history.Close()

	if *keep >= 0 {
		if removed, err := history.Prune(*keep); err != nil {
			log.WithError(err).Warn("Failed to prune load history")
		} else if removed > 0 {
			log.WithField("removed", removed).Info("Pruned load history")
		}
	}

	f := fetcher.New(cfg.FetchOptions())
	d := decoder.New(f, cfg.DecodeOptions(), log)
	l := loader.New(f, d, loader.WithLogger(log), loader.WithRecorder(history))

	server := api.NewAPIServer(feed, l, history, cfg.Request.URL, log)
	server.SetConfig(cfg)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	poller := loader.NewPoller(l, cfg.Request.URL, *refresh, server.Accept)
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- poller.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", *addr).Info("Starting API server")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server failed")
		}
	}

	poller.Stop()
	l.Cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server shutdown incomplete")
	}

	select {
	case <-pollErr:
		log.Info("Poller stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}
