package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/config"
	"github.com/tenorite/tenorite-server/internal/events"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/httpapi"
	"github.com/tenorite/tenorite-server/internal/hub"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/internal/results"
	"github.com/tenorite/tenorite-server/internal/storage"
	"github.com/tenorite/tenorite-server/internal/winlist"
)

const shutdownTimeout = 10 * time.Second

func main() {
	addr := pflag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	envFile := pflag.String("env-file", "", "env file to load (default .env)")
	channels := pflag.String("channels", "", "YAML file declaring permanent channels (overrides CHANNELS_FILE)")
	pflag.Parse()

	obslog.InitFromEnv()
	defer func() { _ = obslog.Sync() }()
	log := obslog.L()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("config_load_failed", zap.Error(err))
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *channels != "" {
		cfg.ChannelsFile = *channels
	}
	if err := cfg.ResolveChannels(); err != nil {
		log.Fatal("channels_load_failed", zap.Error(err))
	}

	if err := run(cfg); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	log := obslog.L()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	closers = append(closers, bus.Close)

	deps := httpapi.Deps{}
	proc := &results.Processor{Bus: bus}

	if cfg.DatabaseURL != "" {
		store, err := storage.Open(cfg.DatabaseURL)
		if err != nil {
			return multierr.Append(err, closeAll(closers))
		}
		closers = append(closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return multierr.Append(err, closeAll(closers))
		}
		deps.Games, proc.Games = store, store
		log.Info("storage_enabled")
	}

	if cfg.RedisURL != "" {
		wl, err := winlist.NewFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return multierr.Append(err, closeAll(closers))
		}
		closers = append(closers, wl.Close)
		deps.Winlist, proc.Winlist = wl, wl
		log.Info("winlist_enabled")
	}

	if err := proc.Start(); err != nil {
		return multierr.Append(err, closeAll(closers))
	}

	h := hub.NewHub(context.Background(), hub.Config{
		IdleTimeout: cfg.IdleTimeout,
		ListTimeout: cfg.ListTimeout,
		Bus:         bus,
	})
	for _, spec := range cfg.Channels {
		tempo, err := game.ParseTempo(spec.Tempo)
		if err == nil {
			_, err = h.Create(ctx, tempo, spec.Mode, spec.Name, false)
		}
		if err != nil {
			log.Warn("permanent_channel_skipped", zap.String("channel", spec.Name), zap.Error(err))
		}
	}
	deps.Channels = h

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting_down")
	case err = <-serveErr:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		err,
		srv.Shutdown(sctx),
		h.Shutdown(sctx),
	)
	proc.Stop()
	return multierr.Append(err, closeAll(closers))
}

func openBus(cfg *config.Config) (events.Bus, error) {
	if cfg.NATSURL == "" {
		return events.NewLocalBus(), nil
	}
	bus, err := events.NewNATSBus(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("nats_bus_connected", zap.String("url", cfg.NATSURL))
	return bus, nil
}

// closeAll closes in reverse order of opening.
func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return err
}
