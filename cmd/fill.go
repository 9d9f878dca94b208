// File: cmd/fill.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/capability"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/detector"
	"github.com/xkilldash9x/formpilot/internal/mapper"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/scheduler"
	"github.com/xkilldash9x/formpilot/internal/store"
	"github.com/xkilldash9x/formpilot/internal/telemetry"
	"github.com/xkilldash9x/formpilot/internal/verifier"
)

// newFillCmd creates and configures the `fill` command.
func newFillCmd() *cobra.Command {
	fillCmd := &cobra.Command{
		Use:   "fill [urls...]",
		Short: "Fills and submits forms on the target URLs using a stored profile",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so CLI flags override config
			// file and environment values with the right precedence.
			if err := viper.BindPFlag("scheduler.max_concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			if err := viper.BindPFlag("scheduler.retry_attempts", cmd.Flags().Lookup("retries")); err != nil {
				return err
			}
			if err := viper.BindPFlag("scheduler.default_timeout", cmd.Flags().Lookup("timeout")); err != nil {
				return err
			}
			if err := viper.BindPFlag("scheduler.delay_between_jobs", cmd.Flags().Lookup("delay")); err != nil {
				return err
			}
			if err := viper.BindPFlag("scheduler.capture_failures", cmd.Flags().Lookup("capture-failures")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg.Fill.ProfileName, _ = cmd.Flags().GetString("profile")
			cfg.Fill.URLs = args
			cfg.Fill.SaveTemplates, _ = cmd.Flags().GetBool("save-templates")
			cfg.Fill.OutputJSON, _ = cmd.Flags().GetString("output")
			if cfg.Fill.ProfileName == "" {
				return fmt.Errorf("--profile is required")
			}

			return runFill(ctx, cfg, observability.GetLogger())
		},
	}

	fillCmd.Flags().StringP("profile", "p", "", "name of the stored profile to fill with (required)")
	fillCmd.Flags().IntP("concurrency", "n", 0, "max concurrent browser instances (0 = derive from host capability)")
	fillCmd.Flags().Int("retries", 2, "retry attempts per URL on transient failures")
	fillCmd.Flags().Duration("timeout", 90*time.Second, "per-URL attempt timeout")
	fillCmd.Flags().Duration("delay", 0, "minimum delay between job dispatches")
	fillCmd.Flags().Bool("save-templates", false, "persist learned form templates for faster replay")
	fillCmd.Flags().Bool("capture-failures", false, "save a screenshot when a URL fails")
	fillCmd.Flags().Bool("headless", true, "run browsers headless")
	fillCmd.Flags().StringP("output", "o", "", "write the session summary as JSON to this file")
	return fillCmd
}

// runFill wires the engine together and drives one session to completion.
func runFill(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 1. Size the engine from host capability unless pinned by config.
	scanner := capability.NewScanner(cfg.Capability, logger)
	caps := scanner.Scan(ctx)
	concurrency := cfg.Scheduler.MaxConcurrency
	if concurrency <= 0 {
		concurrency = caps.OptimalConcurrency
	}
	logger.Info("Engine sized",
		zap.Int("concurrency", concurrency),
		zap.Int("logical_cores", caps.LogicalCores),
		zap.Uint64("available_memory_mb", caps.AvailableMemoryMB),
		zap.Bool("degraded", caps.Degraded),
	)

	// 2. Browser pool.
	pool, err := browser.NewPool(ctx, concurrency, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser pool: %w", err)
	}
	defer pool.Close()

	// 3. Stores.
	profiles, err := store.NewFileProfileStore(cfg.Stores.ProfileDir, logger)
	if err != nil {
		return err
	}
	templates, cleanup, err := newTemplateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// 4. Engine components and telemetry.
	var sink schemas.EventSink
	if cfg.Telemetry.Enabled {
		sink = telemetry.NewLogSink(logger)
	}
	opts := scheduler.Options{
		Pool:      browser.NewPoolAdapter(pool),
		Drivers:   browser.DriverFactory(cfg.Browser, logger),
		Detector:  detector.New(cfg.Detector, logger),
		Mapper:    mapper.New(cfg.Mapper, logger),
		Verifier:  verifier.New(cfg.Verifier, logger),
		Profiles:  profiles,
		Templates: templates,
		Sink:      sink,
	}
	schedCfg := cfg.Scheduler
	schedCfg.MaxConcurrency = concurrency
	sched, err := scheduler.New(schedCfg, opts, logger)
	if err != nil {
		return err
	}

	// 5. Create and run the session.
	session, err := sched.NewSession(ctx, cfg.Fill.ProfileName, cfg.Fill.URLs, schemas.SessionConfig{
		SaveTemplates:    cfg.Fill.SaveTemplates,
		CaptureFailures:  cfg.Scheduler.CaptureFailures,
		Headless:         cfg.Browser.Headless,
		DelayBetweenJobs: cfg.Scheduler.DelayBetweenJobs,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx, session.ID); err != nil {
		return err
	}

	// Cancel the session on the first interrupt; a second one kills us.
	go func() {
		<-ctx.Done()
		if !session.Status().Terminal() {
			logger.Warn("Interrupt received, cancelling session", zap.String("session_id", session.ID))
			_ = sched.Cancel(session.ID)
		}
	}()

	session.Wait()

	summary, err := sched.Summary(session.ID)
	if err != nil {
		return err
	}
	printSummary(summary)
	if cfg.Fill.OutputJSON != "" {
		if err := writeSummaryJSON(cfg.Fill.OutputJSON, summary); err != nil {
			return err
		}
		logger.Info("Summary written", zap.String("path", cfg.Fill.OutputJSON))
	}

	if summary.Status == schemas.StatusFailed {
		return fmt.Errorf("session failed: see errors above")
	}
	return nil
}

// newTemplateStore builds the configured template backend.
func newTemplateStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.TemplateStore, func(), error) {
	switch cfg.Stores.TemplateBackend {
	case "postgres":
		dbPool, err := pgxpool.New(ctx, cfg.Stores.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		ts, err := store.NewPGTemplateStore(ctx, dbPool, logger)
		if err != nil {
			dbPool.Close()
			return nil, nil, err
		}
		return ts, dbPool.Close, nil
	default:
		ts, err := store.NewFileTemplateStore(cfg.Stores.TemplateDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return ts, func() {}, nil
	}
}

func printSummary(s schemas.SessionSummary) {
	fmt.Printf("\nSession %s  [%s]\n", s.ID, s.Status)
	fmt.Printf("Profile: %s\n", s.ProfileName)
	fmt.Printf("Targets: %d  succeeded: %d  failed: %d  skipped: %d  (%.1f%% success)\n",
		s.Progress.Total, s.Progress.Completed, s.Progress.Failed, s.Progress.Skipped, s.SuccessRate)
	for _, r := range s.Results {
		line := fmt.Sprintf("  %-8s %s  fields %d/%d  attempts %d  %s",
			r.Status, r.URL, r.FilledFields, r.TotalFields, r.Attempts, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			line += "  (" + r.Error + ")"
		}
		fmt.Println(line)
	}
	if len(s.Errors) > 0 {
		fmt.Printf("Errors: %d\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Printf("  [%s/%s] %s: %s\n", e.Kind, e.Severity, e.URL, e.Message)
		}
	}
}

func writeSummaryJSON(path string, s schemas.SessionSummary) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
