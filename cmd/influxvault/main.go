// Package main is the entrypoint for the influxvault CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/influxvault/internal/backup"
	"github.com/MacJediWizard/influxvault/internal/checkpoint"
	"github.com/MacJediWizard/influxvault/internal/config"
	"github.com/MacJediWizard/influxvault/internal/influxcli"
	"github.com/MacJediWizard/influxvault/internal/metrics"
	"github.com/MacJediWizard/influxvault/internal/scheduler"
	"github.com/MacJediWizard/influxvault/internal/secrets"
	"github.com/MacJediWizard/influxvault/internal/server"
	"github.com/MacJediWizard/influxvault/internal/storage"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "influxvault",
		Short: "Scheduled backup and restore of InfluxDB buckets to S3",
		Long: `influxvault performs checkpoint-based incremental backups and periodic
whole-bucket snapshots of InfluxDB buckets into S3, and restores them back.

Backup state lives entirely in S3: one last-backup-time checkpoint object per
bucket bounds the next incremental extraction window.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newSnapshotCmd(),
		newSnapshotRestoreCmd(),
		newServeCmd(),
		newScheduleCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("influxvault %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newBackupCmd() *cobra.Command {
	var bucketsJSON string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run an incremental backup of all configured buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestWithBuckets(bucketsJSON)
			if err != nil {
				return err
			}
			return runOnce(func(ctx context.Context, orch *backup.Orchestrator) (*backup.RunResult, error) {
				return orch.IncrementalBackup(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&bucketsJSON, "buckets", "", `bucket list override as JSON, e.g. '[{"name":"b1","measurements":["m1"]}]'`)
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var bucketsJSON, date string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore incremental backups of a given date",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestWithBuckets(bucketsJSON)
			if err != nil {
				return err
			}
			req.BackupDate = date
			return runOnce(func(ctx context.Context, orch *backup.Orchestrator) (*backup.RunResult, error) {
				return orch.IncrementalRestore(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&bucketsJSON, "buckets", "", "bucket list override as JSON")
	cmd.Flags().StringVar(&date, "date", "", "backup date to restore (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var bucketsJSON, prefix string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run a whole-bucket snapshot backup of all configured buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestWithBuckets(bucketsJSON)
			if err != nil {
				return err
			}
			req.S3Prefix = prefix
			return runOnce(func(ctx context.Context, orch *backup.Orchestrator) (*backup.RunResult, error) {
				return orch.SnapshotBackup(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&bucketsJSON, "buckets", "", "bucket list override as JSON")
	cmd.Flags().StringVar(&prefix, "prefix", "", "destination key prefix (default influx-backups/monthly/<timestamp>/)")
	return cmd
}

func newSnapshotRestoreCmd() *cobra.Command {
	var bucketsJSON, timestamp string

	cmd := &cobra.Command{
		Use:   "snapshot-restore",
		Short: "Restore whole-bucket snapshots of a given timestamp",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestWithBuckets(bucketsJSON)
			if err != nil {
				return err
			}
			req.BackupTimestamp = timestamp
			return runOnce(func(ctx context.Context, orch *backup.Orchestrator) (*backup.RunResult, error) {
				return orch.SnapshotRestore(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&bucketsJSON, "buckets", "", "bucket list override as JSON")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "snapshot timestamp to restore (YYYYMMDDTHHMMSSZ, required)")
	_ = cmd.MarkFlagRequired("timestamp")
	return cmd
}

func newServeCmd() *cobra.Command {
	var configPath, listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backup/restore operations over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default :8080)")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on the configured daily and monthly schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runSchedule(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

// runOnce executes a single operation and prints its outcome.
func runOnce(run func(context.Context, *backup.Orchestrator) (*backup.RunResult, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	orch, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	result, err := run(ctx, orch)
	if err != nil {
		if result != nil && len(result.Succeeded) > 0 {
			fmt.Printf("Partial result before failure: %s\n", result)
		}
		return err
	}
	if !result.OK() {
		return fmt.Errorf("operation failed for all buckets: %v", result.Failed)
	}

	fmt.Println(result.Message)
	if len(result.Failed) > 0 {
		fmt.Printf("Failed buckets: %v\n", result.Failed)
	}
	return nil
}

func runServe(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if err := cfg.Validate(); err != nil {
		return err
	}

	orch, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(orch, metrics.New(), logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info().Msg("http server stopped")
	return nil
}

func runSchedule(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if err := cfg.Validate(); err != nil {
		return err
	}

	orch, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sched := scheduler.New(orch, logger)
	if err := sched.Register(cfg.DailySchedule, cfg.MonthlySchedule); err != nil {
		return err
	}

	sched.Start()
	<-ctx.Done()
	sched.Stop()
	return nil
}

// buildOrchestrator wires the AWS clients, the influx CLI wrapper, and the
// engines into an Orchestrator.
func buildOrchestrator(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backup.Orchestrator, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store := storage.New(s3.NewFromConfig(awsCfg), cfg.S3Bucket, logger)
	checkpoints := checkpoint.NewStore(store, logger)
	resolver := secrets.NewResolver(secretsmanager.NewFromConfig(awsCfg), logger)
	influx := influxcli.NewWithBinary(cfg.InfluxBinary, cfg.InfluxURL, cfg.InfluxOrg, logger)

	pipeline := backup.NewPipeline(influx, store, checkpoints, cfg.TempDir, logger)
	engine := backup.NewSnapshotEngine(influx, store, cfg.TempDir, logger)

	return backup.NewOrchestrator(cfg, resolver, pipeline, engine, logger), nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load(), nil
	}
	return config.LoadFile(path)
}

func requestWithBuckets(bucketsJSON string) (backup.Request, error) {
	var req backup.Request
	if bucketsJSON == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(bucketsJSON), &req.Buckets); err != nil {
		return req, fmt.Errorf("parse --buckets: %w", err)
	}
	return req, nil
}
