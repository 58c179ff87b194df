package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "hubspot-deals-connector/docs"
	"hubspot-deals-connector/internal/api"
	"hubspot-deals-connector/internal/config"
	"hubspot-deals-connector/internal/hubspot"
	"hubspot-deals-connector/internal/scan"
	"hubspot-deals-connector/internal/store"
)

// @title HubSpot Deals Connector API
// @version 1.0
// @description Pulls deals from the HubSpot CRM API into local storage with checkpointed, resumable scans.
// @BasePath /api/v1
func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	st, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	svc := scan.NewService(st, log, scan.Options{
		BaseURL:            cfg.HubSpotBaseURL,
		MaxConcurrentScans: cfg.MaxConcurrentScans,
		CheckpointEvery:    cfg.CheckpointEvery,
		MaxPages:           cfg.MaxPages,
		ClientOptions: hubspot.Options{
			BaseURL:    cfg.HubSpotBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.ClientTimeout()},
		},
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(svc, st, log),
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
