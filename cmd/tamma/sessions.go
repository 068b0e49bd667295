package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tammahq/tamma/internal/monitor"
	"github.com/tammahq/tamma/internal/types"
)

var (
	sessListResource string
	sessListStatus   string
	sessListLimit    int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and stop monitoring sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitoring sessions",
	RunE:  runSessionsList,
}

var sessionsStopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop a monitoring session",
	Long: `Closes the session and records a SESSION.STOPPED event. Stopping an
unknown or already finished session is a no-op. A supervise process
attached to the session notices the closed record on its next poll.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsStop,
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessListResource, "resource", "", "Filter by resource id")
	sessionsListCmd.Flags().StringVar(&sessListStatus, "status", "", "Filter by status (active, stopped, timed_out)")
	sessionsListCmd.Flags().IntVar(&sessListLimit, "limit", 50, "Maximum sessions to return")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsStopCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	sessions, err := store.ListSessions(rootCtx, types.SessionFilter{
		ResourceID: sessListResource,
		Status:     types.SessionStatus(sessListStatus),
		Limit:      sessListLimit,
	})
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if jsonOutput {
		for _, s := range sessions {
			printJSON(s)
		}
		return nil
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	now := time.Now()
	for _, s := range sessions {
		fmt.Printf("%s  %-12s  %-9s  started %s  elapsed %s\n",
			s.ID, s.ResourceID, s.Status,
			s.StartedAt.Format(time.RFC3339), s.Elapsed(now).Round(time.Second))
	}
	return nil
}

func runSessionsStop(cmd *cobra.Command, args []string) error {
	// No provider needed: stopping only touches the store and the log.
	manager := monitor.NewManager(store, log, nil)
	if err := manager.StopMonitoring(rootCtx, args[0]); err != nil {
		return fmt.Errorf("stopping session: %w", err)
	}
	if !quietFlag {
		fmt.Printf("Stopped %s\n", args[0])
	}
	return nil
}
