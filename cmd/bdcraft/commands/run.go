package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moolen/bdcraft/internal/config"
	"github.com/moolen/bdcraft/internal/kernel"
	"github.com/moolen/bdcraft/internal/lifecycle"
	"github.com/moolen/bdcraft/internal/logging"
	"github.com/moolen/bdcraft/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	shutdownTimeout time.Duration
	watchConfig     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the kernel and host the configured components",
	Long: `Start the kernel: register the configured components, activate them in
dependency order and keep running until SIGINT or SIGTERM. SIGHUP and edits
to the config file trigger a reload pass.`,
	RunE: runKernel,
}

func init() {
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second,
		"Time allowed for deactivation hooks on shutdown")
	runCmd.Flags().BoolVar(&watchConfig, "watch-config", true,
		"Reload when the config file changes (requires --config)")
}

func runKernel(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := setupLog(cfg, logLevelFlags, cmd.Flags().Changed("log-level")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	logger := logging.GetLogger("kernel")
	logger.Info("Starting bdcraft v%s", Version)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	k, err := kernel.New(kernel.Config{
		SweepInterval:       cfg.SweepInterval,
		MinComponentVersion: cfg.MinComponentVersion,
		Caches:              cfg.CacheSpecs(),
	}, kernel.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("failed to create kernel: %w", err)
	}

	provider, err := tracing.NewProvider(tracingConfig(cfg))
	if err != nil {
		k.Stop(context.Background())
		return fmt.Errorf("failed to create tracing provider: %w", err)
	}
	if err := registerComponents(k, provider, cfg); err != nil {
		k.Stop(context.Background())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := k.Start(ctx)
	if err != nil {
		k.Stop(context.Background())
		return fmt.Errorf("failed to start components: %w", err)
	}
	logReport(logger, report)

	reconfigure := func(next *config.Config) error {
		if err := setupLog(next, logLevelFlags, cmd.Flags().Changed("log-level")); err != nil {
			return err
		}
		if err := k.SetMinComponentVersion(next.MinComponentVersion); err != nil {
			return err
		}
		return provider.Configure(tracingConfig(next))
	}

	opts := hostOptions{
		MetricsAddr:     cfg.MetricsAddr,
		Gatherer:        reg,
		ShutdownTimeout: shutdownTimeout,
	}
	if watchConfig {
		opts.ConfigPath = configPath
		opts.Reconfigure = reconfigure
	}
	return host(ctx, k, opts)
}

// hostOptions configures the loops host runs next to the kernel.
type hostOptions struct {
	// ConfigPath is watched for changes when non-empty.
	ConfigPath string
	// Reconfigure applies a reloaded config before the reload pass runs.
	Reconfigure config.ReloadFunc

	MetricsAddr string
	Gatherer    prometheus.Gatherer

	ShutdownTimeout time.Duration
}

// host runs the reload, SIGHUP, config watch and metrics loops until ctx is
// cancelled or one of them fails. k is stopped before host returns on every
// path, including a failed config watch.
func host(ctx context.Context, k *kernel.Kernel, opts hostOptions) error {
	logger := logging.GetLogger("kernel")

	reloads := make(chan string, 1)
	requestReload := func(reason string) {
		select {
		case reloads <- reason:
		default:
			logger.Debug("Reload already pending, dropping %s", reason)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Reload passes are serialised on this goroutine.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case reason := <-reloads:
				report, err := k.Reload(gctx, reason)
				if errors.Is(err, kernel.ErrReloadVetoed) {
					continue
				}
				if err != nil {
					logger.Error("Reload failed: %v", err)
					continue
				}
				logReport(logger, report)
			}
		}
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				requestReload("SIGHUP")
			}
		}
	})

	if opts.ConfigPath != "" {
		g.Go(func() error {
			watcher, err := config.NewWatcher(config.WatcherConfig{FilePath: opts.ConfigPath}, func(next *config.Config) error {
				if opts.Reconfigure != nil {
					if err := opts.Reconfigure(next); err != nil {
						return err
					}
				}
				requestReload("config changed")
				return nil
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(gctx); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to watch config: %w", err)
			}
			<-gctx.Done()
			return watcher.Stop()
		})
	}

	if opts.MetricsAddr != "" && opts.Gatherer != nil {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics on %s", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("Kernel running")
	runErr := g.Wait()
	if runErr != nil {
		logger.Error("Stopping after error: %v", runErr)
	} else {
		logger.Info("Shutdown signal received, gracefully shutting down...")
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logReport(logger, k.Stop(shutdownCtx))

	logger.Info("Shutdown complete")
	return runErr
}

func tracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		TLSCAPath:      cfg.Tracing.TLSCAPath,
		TLSInsecure:    cfg.Tracing.TLSInsecure,
		ServiceVersion: Version,
	}
}

// registerComponents registers the tracing provider and every manifest
// component. The provider has no dependents, so registering it first only
// makes it the first to activate and the last to deactivate.
func registerComponents(k *kernel.Kernel, provider lifecycle.Component, cfg *config.Config) error {
	if provider != nil {
		if err := k.Register(provider); err != nil {
			return fmt.Errorf("failed to register %s: %w", provider.Name(), err)
		}
	}
	for _, c := range cfg.Components {
		if err := k.Register(kernel.NewDeclaredComponent(c.Name, c.Version, c.DependsOn...)); err != nil {
			return fmt.Errorf("failed to register %s: %w", c.Name, err)
		}
	}
	return nil
}

func logReport(logger *logging.Logger, report *lifecycle.Report) {
	if report == nil {
		return
	}
	for _, f := range report.Failures {
		logger.ErrorWithFields("Component hook failed",
			logging.Field("component", f.Component),
			logging.Field("phase", string(f.Phase)),
			logging.Field("error", f.Err.Error()))
	}
	logger.Info("%s (%s)", report.Summary(), report.Duration)
}
