package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"convtrainer/internal/auth"
	"convtrainer/internal/config"
	"convtrainer/internal/game"
	"convtrainer/internal/handlers"
	"convtrainer/internal/metrics"
	"convtrainer/internal/progress"
	"convtrainer/internal/registry"
	"convtrainer/internal/store"
	"convtrainer/internal/ws"
)

// run wires the full stack and serves until the context is cancelled or
// a termination signal arrives.
func run(ctx context.Context, cfg *config.ServerConfig) error {
	setupLogging(cfg)
	log := logrus.WithField("component", "server")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	authSvc := auth.New(st, st, cfg.Session.CookieName, []byte(cfg.Session.SigningKey))
	authSvc.GameSessionTTL = cfg.Session.GameSessionTTL
	authSvc.ParticipantTokenTTL = cfg.Session.ParticipantTokenTTL

	hub := ws.NewHub()
	prog := progress.New(st)
	defer prog.Close()

	reg := registry.New(registry.Config{
		MaxRooms:      cfg.Game.MaxRooms,
		RoomIdleTTL:   cfg.Game.RoomIdleTTL,
		Retention:     cfg.Game.RoomRetention,
		SweepInterval: cfg.Game.SweepInterval,
	})
	reg.Sink = hub
	reg.TournamentSink = hub
	reg.Results = prog
	reg.Timings = game.Timings{
		SyncRound:       cfg.Game.SyncRoundWindow,
		DisconnectGrace: cfg.Game.DisconnectGrace,
		AllLeftGrace:    cfg.Game.DisconnectGrace,
		EndedDrain:      cfg.Game.EndedDrain,
	}
	reg.Start()
	defer reg.Close()

	h := handlers.New(cfg, reg, hub, authSvc, prog, st)
	router := handlers.SetupRouter(h, cfg, nil)

	server := &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: WS connections write for the room's lifetime.
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.Server.EnableMetrics {
		metrics.RegisterRegistryGauges(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.MetricsPort,
			Handler: mux,
		}
		go func() {
			log.WithField("addr", metricsServer.Addr).Info("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	log.Info("server stopped")
	return nil
}

// openStore picks the backend: postgres when STORE_URL is set, memory
// otherwise.
func openStore(ctx context.Context, cfg *config.ServerConfig) (store.Store, error) {
	if cfg.Store.URL == "" {
		logrus.Warn("STORE_URL empty, using in-memory store; scores will not survive a restart")
		return store.NewMemoryStore(), nil
	}
	return store.OpenPostgres(ctx, cfg.Store.URL)
}

func setupLogging(cfg *config.ServerConfig) {
	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Server.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
