// cmd/processor/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coolbox13/omfietser-processor/internal/batch"
	"github.com/coolbox13/omfietser-processor/internal/config"
	"github.com/coolbox13/omfietser-processor/internal/control"
	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/monitoring"
	"github.com/coolbox13/omfietser-processor/internal/progress"
	"github.com/coolbox13/omfietser-processor/internal/storage"
	"github.com/coolbox13/omfietser-processor/internal/transform"
	"github.com/coolbox13/omfietser-processor/internal/webhook"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Version information (set by build system via ldflags)
var (
	Version   = "v0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	var (
		configFile      string
		enableProfiling bool
		profilingPort   string
	)

	rootCmd := &cobra.Command{
		Use:   "processor",
		Short: "Supermarket product processing engine",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("processor %s\n  Git Commit: %s\n  Build Time: %s\n", Version, GitCommit, BuildTime)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the processing engine and its Control Surface",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServer(configFile, enableProfiling, profilingPort)
		},
	}
	serveCmd.Flags().BoolVar(&enableProfiling, "profile", false, "Enable pprof profiling server")
	serveCmd.Flags().StringVar(&profilingPort, "profile-port", "6060", "Port for the pprof server")

	var watchBaseURL string
	watchCmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job's progress and render a terminal progress bar",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runWatch(watchBaseURL, args[0])
		},
	}
	watchCmd.Flags().StringVar(&watchBaseURL, "base-url", "http://localhost:8080", "Control Surface base URL")

	var allowExtras, checkTypes bool
	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Run the template validator over a JSON fixture without a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidate(args[0], allowExtras, checkTypes)
		},
	}
	validateCmd.Flags().BoolVar(&allowExtras, "allow-extras", true, "Do not flag fields outside the 32-field template")
	validateCmd.Flags().BoolVar(&checkTypes, "check-types", true, "Flag fields whose value does not match its declared kind")

	rootCmd.AddCommand(versionCmd, serveCmd, watchCmd, validateCmd)
	rootCmd.RunE = serveCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(configFile string, enableProfiling bool, profilingPort string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(logging.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      "json",
		Output:      "stdout",
		Development: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if enableProfiling {
		go func() {
			logger.Info("starting pprof server", zap.String("port", profilingPort))
			if err := http.ListenAndServe(":"+profilingPort, nil); err != nil {
				logger.Warn("pprof server exited", zap.Error(err))
			}
		}()
	}

	pool, err := storage.NewPool(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to construct database pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = pool.Close() }()

	contract := storage.NewPostgresContract(pool)

	registry := transform.NewRegistry()
	adapter := batch.NewAdapter(registry, logger)

	dispatcher := webhook.NewDispatcher(cfg.Webhook, logger)
	manager := job.NewManager(contract, adapter, dispatcher, logger).
		WithCheckpointStore(job.NewCheckpointStore(cfg.CheckpointDir)).
		WithTransactionalPool(pool)

	agent := monitoring.NewAgent(contract, pool, manager, dispatcher, monitoring.Thresholds{}, logger)
	agent.Start(ctx)
	defer agent.Stop()

	router := control.NewRouter(manager, contract, agent, logger, cfg.SchemaVersion, cfg.EnforceStructure)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("control surface listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrs:
		return fmt.Errorf("control surface failed: %w", err)
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", err)
		return err
	}
	return nil
}

// runWatch polls the Control Surface's progress endpoint and renders it
// with the terminal progress bar adapted from the teacher's seeding-progress
// display.
func runWatch(baseURL, jobID string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	url := baseURL + "/jobs/" + jobID + "/progress"

	var tracker *progress.BatchTracker
	for {
		snapshot, err := fetchProgress(client, url)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}

		if tracker == nil {
			tracker = progress.NewBatchTracker("job "+jobID, snapshot.TotalProducts, 1)
		}
		tracker.Update(snapshot.ProcessedCount)

		if snapshot.Status == "completed" || snapshot.Status == "failed" || snapshot.Status == "cancelled" {
			tracker.Finish()
			return nil
		}
		time.Sleep(time.Second)
	}
}

// runValidate loads a JSON fixture (a single record object, or an array of
// them) and runs it through the Template & Validator offline, so a shop
// transformer's output can be checked for drift without standing up the
// Control Surface.
func runValidate(path string, allowExtras, checkTypes bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("validate: read fixture: %w", err)
	}

	var records []template.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		var single template.Record
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return fmt.Errorf("validate: fixture is neither a record nor an array of records: %w", err)
		}
		records = []template.Record{single}
	}

	opts := template.ValidateOptions{AllowExtras: allowExtras, CheckTypes: checkTypes}
	exitCode := 0
	for i, record := range records {
		report := template.Validate(record, opts)
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("validate: encode report: %w", err)
		}
		fmt.Printf("record %d: %s\n", i, encoded)
		if !report.OK {
			exitCode = 1
		}
	}

	if len(records) > 1 {
		drift := template.Drift(records, 5)
		encoded, err := json.MarshalIndent(drift, "", "  ")
		if err != nil {
			return fmt.Errorf("validate: encode drift report: %w", err)
		}
		fmt.Printf("drift summary: %s\n", encoded)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

type progressSnapshot struct {
	Status         string `json:"status"`
	ProcessedCount int    `json:"processed_count"`
	TotalProducts  int    `json:"total_products"`
}

func fetchProgress(client *http.Client, url string) (progressSnapshot, error) {
	resp, err := client.Get(url)
	if err != nil {
		return progressSnapshot{}, err
	}
	defer resp.Body.Close()

	var body struct {
		Data progressSnapshot `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return progressSnapshot{}, err
	}
	return body.Data, nil
}
