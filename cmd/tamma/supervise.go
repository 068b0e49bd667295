package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tammahq/tamma/internal/escalation"
	"github.com/tammahq/tamma/internal/monitor"
	"github.com/tammahq/tamma/internal/notify"
	"github.com/tammahq/tamma/internal/platform"
	"github.com/tammahq/tamma/internal/policy"
	"github.com/tammahq/tamma/internal/retry"
	"github.com/tammahq/tamma/internal/telemetry"
	"github.com/tammahq/tamma/internal/types"
)

var (
	superviseAttach        bool
	supervisePollInterval  time.Duration
	superviseMaxDuration   time.Duration
	superviseProviderToken string
)

var superviseCmd = &cobra.Command{
	Use:   "supervise [resource-id]",
	Short: "Supervise a resource until it reaches a terminal state",
	Long: `Starts (or resumes) a monitoring session for a resource and runs it in
the foreground: polls the platform bridge for status, records every
transition in the audit log, retries failing checks with backoff, and
escalates when retries are exhausted.

Runs until the resource reaches a terminal state, the session times out,
or the process receives SIGINT/SIGTERM. An interrupted session stays
active in the store; supervise --attach resumes it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSupervise,
}

func init() {
	superviseCmd.Flags().BoolVar(&superviseAttach, "attach", false, "Resume all active sessions instead of starting a new one")
	superviseCmd.Flags().DurationVar(&supervisePollInterval, "poll-interval", 0, "Status poll interval (default: config, then 30s)")
	superviseCmd.Flags().DurationVar(&superviseMaxDuration, "max-duration", 0, "Hard monitoring ceiling (default: config, then 2h)")
	superviseCmd.Flags().StringVar(&superviseProviderToken, "provider-token", "", "Bearer token for the platform bridge (default: $TAMMA_PROVIDER_TOKEN)")
	rootCmd.AddCommand(superviseCmd)
}

func runSupervise(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !superviseAttach {
		return fmt.Errorf("supervise needs a resource id or --attach")
	}

	provider, err := buildProvider()
	if err != nil {
		return err
	}

	logger := slog.Default()
	dispatcher := notify.NewDispatcher(tammaDir, logger)
	escalator := escalation.NewManager(store, log,
		escalation.WithLogger(logger),
		escalation.WithDispatcher(dispatcher))
	engine := retry.NewEngine(log, escalator, retry.WithLogger(logger))

	manager := monitor.NewManager(store, log, provider,
		monitor.WithLogger(logger),
		monitor.WithRetryEngine(engine),
		monitor.WithEscalator(escalator),
		monitor.WithConfig(superviseConfig()))

	// Resolution tailer and telemetry observer run for the life of the
	// command; their tails close when runCtx is cancelled.
	runCtx, cancelRun := context.WithCancel(rootCtx)
	defer cancelRun()
	go func() {
		if err := manager.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Warn("resolution tailer exited", "error", err)
		}
	}()
	go telemetry.NewObserver(log).Run(runCtx)

	var sessionIDs []string
	if superviseAttach {
		sessionIDs, err = manager.Attach(rootCtx)
		if err != nil {
			return fmt.Errorf("attaching to active sessions: %w", err)
		}
		if len(sessionIDs) == 0 && len(args) == 0 {
			fmt.Println("No active sessions to resume.")
			return nil
		}
		for _, id := range sessionIDs {
			logger.Info("resumed session", "session_id", id)
		}
	}
	if len(args) == 1 {
		sessionID, err := manager.StartMonitoring(rootCtx, args[0], supervisePollInterval, superviseMaxDuration)
		if err != nil {
			return fmt.Errorf("starting session for %s: %w", args[0], err)
		}
		logger.Info("supervising", "resource_id", args[0], "session_id", sessionID)
		sessionIDs = append(sessionIDs, sessionID)
	}

	// Block until every session loop exits (terminal state, timeout, or
	// resolution) or until we are signalled.
	done := make(chan struct{})
	go func() {
		_ = manager.Wait()
		close(done)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("interrupted, detaching from sessions")
		if err := manager.Shutdown(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	case <-done:
	}

	return reportSessions(manager, sessionIDs)
}

// buildProvider returns the platform bridge client used for live polling.
func buildProvider() (platform.StatusProvider, error) {
	base := firstNonEmpty(viper.GetString("provider-url"), os.Getenv("TAMMA_PROVIDER_URL"))
	if base == "" {
		return nil, fmt.Errorf("supervise needs a platform bridge: set --provider-url or TAMMA_PROVIDER_URL")
	}
	token := firstNonEmpty(superviseProviderToken, os.Getenv("TAMMA_PROVIDER_TOKEN"))
	return platform.NewHTTPProvider(base, token), nil
}

// superviseConfig merges the config file, per-operation policy files, and
// command flags into the monitor configuration.
func superviseConfig() monitor.Config {
	mc := monitor.Config{
		PollInterval:      cfg.Monitor.PollInterval.Std(),
		MaxDuration:       cfg.Monitor.MaxDuration.Std(),
		DegradedThreshold: cfg.Monitor.DegradedThreshold,
		CheckRetry: types.RetryContext{
			OperationKind: "ci_check",
			MaxAttempts:   cfg.Retry.MaxAttempts,
			BaseDelay:     cfg.Retry.BaseDelay.Std(),
			MaxDelay:      cfg.Retry.MaxDelay.Std(),
		},
	}
	if supervisePollInterval > 0 {
		mc.PollInterval = supervisePollInterval
	}
	if superviseMaxDuration > 0 {
		mc.MaxDuration = superviseMaxDuration
	}
	mc.CheckRetry = policy.NewLoader().Resolve("ci_check", mc.CheckRetry)
	return mc
}

func reportSessions(manager *monitor.Manager, ids []string) error {
	ctx := context.Background()
	for _, id := range ids {
		sess, err := manager.Session(ctx, id)
		if err != nil {
			slog.Warn("loading final session state", "session_id", id, "error", err)
			continue
		}
		if jsonOutput {
			printJSON(sess)
			continue
		}
		fmt.Printf("%s  %s  %s  elapsed %s\n", sess.ID, sess.ResourceID, sess.Status, sess.Elapsed(time.Now()).Round(time.Second))
	}
	return nil
}
