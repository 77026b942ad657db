// Package cli assembles the queuectl command tree: enqueue, worker,
// status, list, dlq, config, and version.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/queuectl/queuectl/pkg/config"
	"github.com/queuectl/queuectl/pkg/dlq"
	"github.com/queuectl/queuectl/pkg/executor"
	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
	"github.com/queuectl/queuectl/pkg/queue/factory"
	"github.com/queuectl/queuectl/pkg/version"
	"github.com/queuectl/queuectl/pkg/worker"
)

// DefaultConfigPath is where queuectl reads and writes its config file
// unless --config-file says otherwise.
const DefaultConfigPath = "queuectl.yaml"

// Options customizes the root command.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// NewRootCommand builds the queuectl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "queuectl"
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")

	defaults := config.DefaultConfig()
	rootCmd.PersistentFlags().String("store-path", defaults.StorePath, "SQLite database file")
	rootCmd.PersistentFlags().String("store-type", defaults.StoreType, "job store backend (sqlite, memory)")
	rootCmd.PersistentFlags().String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", defaults.LogFormat, "log format (text, json)")

	provider := func() *config.Provider {
		return config.NewProvider(cfgPath, opts.EnvPrefix).WithFlags(rootCmd.PersistentFlags())
	}

	loadConfig := func() (*config.Config, logger.Logger, error) {
		cfg, err := provider().Load()
		if err != nil {
			return nil, nil, err
		}

		level, err := logger.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		format, err := logger.ParseLogFormat(cfg.LogFormat)
		if err != nil {
			return nil, nil, err
		}
		log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
		if err != nil {
			return nil, nil, fmt.Errorf("create logger: %w", err)
		}
		return cfg, log, nil
	}

	rootCmd.AddCommand(newEnqueueCommand(loadConfig))
	rootCmd.AddCommand(newWorkerCommand(loadConfig))
	rootCmd.AddCommand(newStatusCommand(loadConfig))
	rootCmd.AddCommand(newListCommand(loadConfig))
	rootCmd.AddCommand(newDLQCommand(loadConfig))
	rootCmd.AddCommand(newConfigCommand(provider))
	rootCmd.AddCommand(newVersionCommand(opts.Name))

	return rootCmd
}

type configLoader func() (*config.Config, logger.Logger, error)

func newEnqueueCommand(loadConfig configLoader) *cobra.Command {
	var jobID string
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "enqueue <command>",
		Short: "Add a shell command to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := factory.NewStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			q, err := queue.NewQueue(store, cfg.StoreType, log, cfg.MaxRetries)
			if err != nil {
				return err
			}

			command := strings.Join(args, " ")
			job, err := q.Enqueue(cmd.Context(), jobID, command, maxRetries)
			if err != nil {
				return err
			}

			fmt.Printf("Enqueued job %s\n", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "id", "", "explicit job id (default: random UUID)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "attempt budget for this job (default: config max_retries)")
	return cmd
}

func newWorkerCommand(loadConfig configLoader) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Worker pool commands",
	}

	var count int
	var metricsAddr string

	startCmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run a pool of workers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := factory.NewStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			exec, err := executor.New(cfg.CommandTimeout, log)
			if err != nil {
				return err
			}

			manager, err := worker.NewManager(worker.ManagerConfig{
				Count:        count,
				IdleInterval: cfg.IdleInterval,
				StopTimeout:  cfg.StopTimeout,
			}, store, exec, worker.NewRetryPolicy(cfg.BackoffBase), log)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				go serveMetrics(runCtx, metricsAddr, log)
			}

			if err := manager.Start(runCtx); err != nil {
				return err
			}
			<-runCtx.Done()
			return manager.Stop()
		},
	}
	startCmd.Flags().IntVar(&count, "count", 1, "number of concurrent workers")
	startCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for Prometheus metrics (empty: disabled)")
	workerCmd.AddCommand(startCmd)

	return workerCmd
}

func newStatusCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := factory.NewStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tCOUNT")
			for _, state := range queue.AllStates() {
				fmt.Fprintf(w, "%s\t%d\n", state, stats[state])
			}
			return w.Flush()
		},
	}
}

func newListCommand(loadConfig configLoader) *cobra.Command {
	var stateText string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			states := queue.AllStates()
			if stateText != "" {
				state, err := queue.ParseState(stateText)
				if err != nil {
					return err
				}
				states = []queue.State{state}
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := factory.NewStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			var jobs []*queue.Job
			for _, state := range states {
				matched, err := store.ListByState(cmd.Context(), state)
				if err != nil {
					return err
				}
				jobs = append(jobs, matched...)
			}
			return printJobs(jobs)
		},
	}
	cmd.Flags().StringVar(&stateText, "state", "", "only list jobs in this state (pending, processing, completed, failed, dead)")
	return cmd
}

func newDLQCommand(loadConfig configLoader) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead letter queue commands",
	}

	dlqCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List jobs that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := factory.NewStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			service, err := dlq.NewService(store, log)
			if err != nil {
				return err
			}
			jobs, err := service.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJobs(jobs)
		},
	})

	dlqCmd.AddCommand(&cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := factory.NewStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			service, err := dlq.NewService(store, log)
			if err != nil {
				return err
			}
			job, err := service.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Requeued job %s\n", job.ID)
			return nil
		},
	})

	return dlqCmd
}

func newConfigCommand(provider func() *config.Provider) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Show one effective configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := provider().Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%v\n", value)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist one configuration value to the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := provider()
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Set %s in %s\n", args[0], p.ConfigFile())
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := provider().AllSettings()
			if err != nil {
				return err
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Print(formatted)
			return nil
		},
	})

	return configCmd
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(name)
			fmt.Printf("Service:    %s\n", info.Service)
			fmt.Printf("Version:    %s\n", info.Version)
			fmt.Printf("Commit:     %s\n", info.Commit)
			fmt.Printf("Build Time: %s\n", info.BuildTime)
		},
	}
}

// printJobs renders jobs as an aligned table, one row per job.
func printJobs(jobs []*queue.Job) error {
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPTS\tCOMMAND\tUPDATED\tLAST ERROR")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			job.ID, job.State, job.Attempts, job.MaxRetries,
			truncate(job.Command, 40),
			job.UpdatedAt.Format(time.RFC3339),
			truncate(job.LastError, 40),
		)
	}
	return w.Flush()
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func formatSettings(settings map[string]any) (string, error) {
	if len(settings) == 0 {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func closeStore(store queue.Store, log logger.Logger) {
	if err := store.Close(); err != nil {
		log.Error("failed to close store", "error", err)
	}
}

// serveMetrics exposes the Prometheus registry on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics listener failed", "error", err)
	}
}

// Execute runs the command and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
