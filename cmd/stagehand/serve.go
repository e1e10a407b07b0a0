package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/config"
	"github.com/dgnsrekt/stagehand-relay/internal/notify"
	"github.com/dgnsrekt/stagehand-relay/internal/probe"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
	"github.com/dgnsrekt/stagehand-relay/internal/server"
	"github.com/dgnsrekt/stagehand-relay/internal/stream"
)

func serveCmd() *cobra.Command {
	var (
		port     int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay server.

The server samples the active media session, broadcasts changes to every
connected subscriber and forwards control commands to the player.

Examples:
  # Serve the first MPRIS player found by playerctl
  stagehand serve

  # Serve the simulated demo player on another port
  stagehand serve --provider demo --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("provider") {
				cfg.Provider.Kind = provider
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().StringVar(&provider, "provider", "", "media provider: playerctl or demo (overrides provider.kind)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("provider", cfg.Provider.Kind),
		zap.Duration("pollInterval", cfg.Poll.Interval),
		zap.Duration("deliveryBudget", cfg.Broadcast.DeliveryBudget),
		zap.Bool("notify", cfg.Notify.Enabled),
	)

	// The relay starts on the idle provider; the real one is swapped in once acquired.
	providers := probe.NewSwappable(probe.IdleProvider{})
	src := probe.New(providers, cfg.Poll.SampleTimeout, logger.Named("probe"))
	svc := relay.NewService(src, relay.Options{
		Interval:         cfg.Poll.Interval,
		DeliveryBudget:   cfg.Broadcast.DeliveryBudget,
		SubscriberBuffer: cfg.Broadcast.SubscriberBuffer,
	}, logger.Named("relay"))

	encoder, err := stream.NewEncoder()
	if err != nil {
		return err
	}
	defer encoder.Close()

	srv := server.NewServer(svc, encoder, server.Options{
		PollInterval: cfg.Poll.Interval,
		CommandRate:  cfg.Commands.RatePerSecond,
		CommandBurst: cfg.Commands.Burst,
		Heartbeat:    cfg.Stream.Heartbeat,
		WebSocket: stream.WSConfig{
			WriteWait:  cfg.Stream.WriteWait,
			PongWait:   cfg.Stream.PongWait,
			PingPeriod: cfg.Stream.PingPeriod,
		},
	}, logger.Named("http"))

	reloader := server.NewProviderReloader(providers, "idle", providerFactories(cfg.Provider), logger.Named("reload"))
	if cfg.Provider.AllowReload {
		srv.SetReloader(reloader)
	}

	router, err := server.NewRouter(srv, logger.Named("http"))
	if err != nil {
		return err
	}

	var wg conc.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startupCtx, startupTarget := reloader.Startup(ctx)
	wg.Go(func() { acquireProvider(startupCtx, cfg.Provider, startupTarget, logger.Named("probe")) })
	wg.Go(func() { svc.Run(ctx) })
	if cfg.Notify.Enabled {
		notifyLogger := logger.Named("notify")
		wg.Go(func() { notify.Watch(ctx, svc, notify.New(&cfg.Notify, notifyLogger), notifyLogger) })
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// Streams derive from ctx and end when it is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		return err
	}

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// providerFactories lists the providers that can be switched to at runtime.
func providerFactories(pc config.ProviderConfig) map[string]probe.Factory {
	return map[string]probe.Factory{
		config.ProviderPlayerctl: probe.PlayerctlFactory(pc.Player, pc.Artwork),
		config.ProviderDemo: func(context.Context) (probe.Provider, error) {
			return probe.NewDemoProvider(), nil
		},
	}
}

// acquireProvider installs the configured provider and returns its kind, or ""
// when nothing was installed. playerctl is retried until it becomes available
// unless demo fallback is enabled, in which case a single failed attempt
// switches to the demo player.
func acquireProvider(ctx context.Context, pc config.ProviderConfig, target probe.Installer, logger *zap.Logger) string {
	if pc.Kind == config.ProviderDemo {
		target.Swap(probe.NewDemoProvider())
		logger.Info("demo provider installed")
		return config.ProviderDemo
	}

	factory := probe.PlayerctlFactory(pc.Player, pc.Artwork)
	if !pc.FallbackDemo {
		if err := probe.Acquire(ctx, factory, pc.AcquireRetry, target, logger); err != nil {
			return ""
		}
		return config.ProviderPlayerctl
	}

	if err := probe.Acquire(ctx, factory, 0, target, logger); err != nil {
		if ctx.Err() != nil {
			return ""
		}
		logger.Warn("falling back to demo provider", zap.Error(err))
		target.Swap(probe.NewDemoProvider())
		return config.ProviderDemo
	}
	return config.ProviderPlayerctl
}
