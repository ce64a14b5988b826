package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reddwarf-sh/reddwarf/pkg/api"
	"github.com/reddwarf-sh/reddwarf/pkg/controller"
	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/kv"
	"github.com/reddwarf-sh/reddwarf/pkg/log"
	"github.com/reddwarf-sh/reddwarf/pkg/metrics"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
	"github.com/reddwarf-sh/reddwarf/pkg/zone"
)

var (
	// Version information (set via ldflags during build).
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reddwarf",
	Short:   "Reddwarf - a Kubernetes-model-compatible control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"reddwarf version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane: version store, REST API, and controller",
	RunE:  runServe,
}

func init() {
	defaults := defaultConfig()
	serveCmd.Flags().String("data-dir", defaults.DataDir, "directory holding the kv store file")
	serveCmd.Flags().String("listen-addr", defaults.ListenAddr, "address the REST API listens on")
	serveCmd.Flags().String("runtime", defaults.Runtime, `zone runtime to drive Pods through: "mock" or "containerd"`)
	serveCmd.Flags().String("containerd-socket", "", "containerd socket path (only used when --runtime=containerd)")
	serveCmd.Flags().Bool("log-json", defaults.LogJSON, "emit logs as JSON instead of console-formatted")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := kv.Open(filepath.Join(cfg.DataDir, "reddwarf.db"))
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer store.Close()

	vs := version.New(store)
	bus := events.NewBroker()

	runtime, closeRuntime, err := buildRuntime(cfg)
	if err != nil {
		return fmt.Errorf("build zone runtime: %w", err)
	}
	if closeRuntime != nil {
		defer closeRuntime()
	}

	ctl := controller.New(vs, bus, runtime)
	ctl.Start()
	defer ctl.Stop()

	collector := metrics.NewCollector(vs, bus)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(vs, bus)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("starting API server")
		if err := server.Start(cfg.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("API server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *Config) {
	if v, err := cmd.Flags().GetString("data-dir"); err == nil && cmd.Flags().Changed("data-dir") {
		cfg.DataDir = v
	}
	if v, err := cmd.Flags().GetString("listen-addr"); err == nil && cmd.Flags().Changed("listen-addr") {
		cfg.ListenAddr = v
	}
	if v, err := cmd.Flags().GetString("runtime"); err == nil && cmd.Flags().Changed("runtime") {
		cfg.Runtime = v
	}
	if v, err := cmd.Flags().GetString("containerd-socket"); err == nil && cmd.Flags().Changed("containerd-socket") {
		cfg.ContainerdSocket = v
	}
	if v, err := cmd.Flags().GetBool("log-json"); err == nil && cmd.Flags().Changed("log-json") {
		cfg.LogJSON = v
	}
}

func buildRuntime(cfg Config) (zone.Runtime, func(), error) {
	switch cfg.Runtime {
	case "", "mock":
		return zone.NewMockRuntime(), nil, nil
	case "containerd":
		rt, err := zone.NewContainerdRuntime(cfg.ContainerdSocket)
		if err != nil {
			return nil, nil, err
		}
		return rt, func() { _ = rt.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
}
