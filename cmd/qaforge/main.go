package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qaforge/qaforge/pkg/agent"
	"github.com/qaforge/qaforge/pkg/config"
	"github.com/qaforge/qaforge/pkg/logger"
	"github.com/qaforge/qaforge/pkg/metrics"
	"github.com/qaforge/qaforge/pkg/observability"
	"github.com/qaforge/qaforge/pkg/pool"
	"github.com/qaforge/qaforge/pkg/qaerrors"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "qaforge",
		Short: "QAForge - pooled QE agent runtime",
		Long: `QAForge maintains a warm pool of reusable quality-engineering agents
(test generators, accessibility scanners, performance testers, risk scorers)
so analysis requests are served in milliseconds instead of paying full
construction and initialization per request.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("QAForge v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "agents",
		Short: "List registered agent types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Registered agent types:")
			for _, t := range agent.ListTypes() {
				fmt.Printf("  - %s\n", t)
			}
		},
	})

	var showConfigFile string
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(showConfigFile)
			if err != nil {
				return err
			}
			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	configCmd.Flags().StringVarP(&showConfigFile, "config", "c", "", "Path to YAML configuration file (optional)")
	root.AddCommand(configCmd)

	var statsConfigFile string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Warm up the configured pool and print a stats snapshot",
		Long: `Build the pool from configuration, warm up the registered agent types,
and print the resulting pool statistics and host resource usage as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(statsConfigFile)
		},
	}
	statsCmd.Flags().StringVarP(&statsConfigFile, "config", "c", "", "Path to YAML configuration file (optional)")
	root.AddCommand(statsCmd)

	var configFile string
	var duration time.Duration
	var workers int

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a demonstration workload against the pool",
		Long: `Run a pool with the built-in agent types and drive it with concurrent
acquire/release workers, then print the final pool statistics as JSON.

Example:
  qaforge demo --config qaforge.yaml --duration 30s --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(configFile, duration, workers)
		},
	}
	demoCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	demoCmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to run the workload")
	demoCmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Number of concurrent acquire/release workers")
	root.AddCommand(demoCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStats(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: "error", Encoding: "json"}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := pool.New(cfg.Pool, agent.NewRegistryFactory(nil), logger.Get())
	if err != nil {
		return err
	}
	if err := p.Warmup(ctx, agent.ListTypes()...); err != nil {
		return err
	}

	stats := p.Stats()
	resources, err := observability.SnapshotResources(ctx)
	if err != nil {
		return err
	}
	if err := p.Shutdown(context.Background()); err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		Pool      pool.Stats                     `json:"pool"`
		Resources observability.ResourceSnapshot `json:"resources"`
	}{Pool: stats, Resources: resources}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runDemo(configFile string, duration time.Duration, workers int) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    "json",
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:  cfg.Tracing.ServiceName,
			SamplingRate: cfg.Tracing.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	p, err := pool.New(cfg.Pool, agent.NewRegistryFactory(nil), log)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		observer := metrics.NewObserver(p)
		defer observer.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		log.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
	}

	warmupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = p.Warmup(warmupCtx, agent.ListTypes()...)
	cancel()
	if err != nil {
		return err
	}

	log.Info("demo workload starting",
		zap.Int("workers", workers),
		zap.Duration("duration", duration))

	deadline := time.Now().Add(duration)
	types := agent.ListTypes()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for time.Now().Before(deadline) && ctx.Err() == nil {
				agentType := types[rng.Intn(len(types))]
				lease, err := p.AcquireWithOptions(ctx, agentType, pool.AcquireOptions{
					Priority: rng.Intn(3),
					Timeout:  2 * time.Second,
				})
				if err != nil {
					if qaerrors.IsRetryable(err) {
						continue
					}
					log.Warn("acquire failed", zap.String("agent_type", agentType), zap.Error(err))
					return
				}
				// Simulate a short analysis task.
				time.Sleep(time.Duration(1+rng.Intn(20)) * time.Millisecond)
				p.Release(ctx, lease.PoolID)
			}
		}(i)
	}
	wg.Wait()

	stats := p.Stats()
	if err := p.Shutdown(context.Background()); err != nil {
		log.Warn("shutdown failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
