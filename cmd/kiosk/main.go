package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/audio"
	"github.com/voicekiosk/voicekiosk/internal/catalog"
	"github.com/voicekiosk/voicekiosk/internal/config"
	"github.com/voicekiosk/voicekiosk/internal/dispatch"
	"github.com/voicekiosk/voicekiosk/internal/httpserver"
	"github.com/voicekiosk/voicekiosk/internal/live"
	"github.com/voicekiosk/voicekiosk/internal/order"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()

	cfg := config.Load()

	store, err := catalog.NewStore(cfg.CatalogPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load catalog")
	}

	orders := order.NewManager(store.Current(), logger)
	store.OnSwap(orders.SetCatalog)

	dedup := dispatch.NewTracker(cfg.Tuning.DedupWindow())
	disp := dispatch.New(orders, dedup, logger)

	session := live.NewSession(&cfg, orders, disp, func() live.Transport {
		return live.NewTransport(cfg.LiveEndpoint, cfg.LiveAPIKey, logger)
	}, logger)

	playback := audio.NewPlayback(cfg.Tuning, nil, logger)
	capture := audio.NewCapture(cfg.Tuning, session, playback.Speaking, logger)
	session.AttachAudio(capture, playback)

	done := make(chan struct{})
	go func() {
		if err := store.Watch(done); err != nil {
			logger.Warn().Err(err).Msg("catalog watcher stopped")
		}
	}()

	srv := httpserver.New(session, orders, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress).Msg("control API listening")
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	session.Disconnect()
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = server.Close()
	}
}
