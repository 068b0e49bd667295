package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tammahq/tamma/internal/escalation"
	"github.com/tammahq/tamma/internal/types"
)

var (
	escListResource string
	escListType     string
	escListSeverity string
	escListAll      bool
	escListLimit    int
	escListWatch    bool

	escResolveAction string
	escResolveNote   string
)

var escalationsCmd = &cobra.Command{
	Use:     "escalations",
	Aliases: []string{"esc"},
	Short:   "List, inspect, and resolve escalations",
}

var escalationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalations (open by default)",
	Example: `  tamma escalations list
  tamma escalations list --all --resource PR-42
  tamma escalations list --watch`,
	RunE: runEscalationsList,
}

var escalationsShowCmd = &cobra.Command{
	Use:   "show <escalation-id>",
	Short: "Show one escalation with its retry history",
	Args:  cobra.ExactArgs(1),
	RunE:  runEscalationsShow,
}

var escalationsResolveCmd = &cobra.Command{
	Use:   "resolve <escalation-id>",
	Short: "Resolve an escalation and apply its action to the session",
	Long: `Records a resolution on an open escalation. The action steers the
originating monitoring session: "stop" ends it, "resume" clears its retry
budgets so exhausted checks run again, "dismiss" acknowledges without
changing anything. Resolving twice is an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runEscalationsResolve,
}

func init() {
	escalationsListCmd.Flags().StringVar(&escListResource, "resource", "", "Filter by resource id")
	escalationsListCmd.Flags().StringVar(&escListType, "type", "", "Filter by escalation type")
	escalationsListCmd.Flags().StringVar(&escListSeverity, "severity", "", "Filter by severity (low, medium, high, critical)")
	escalationsListCmd.Flags().BoolVar(&escListAll, "all", false, "Include resolved escalations")
	escalationsListCmd.Flags().IntVar(&escListLimit, "limit", 50, "Maximum escalations to return")
	escalationsListCmd.Flags().BoolVar(&escListWatch, "watch", false, "Re-render when the database changes")

	escalationsResolveCmd.Flags().StringVar(&escResolveAction, "action", "dismiss", "Resolution action: stop, resume, or dismiss")
	escalationsResolveCmd.Flags().StringVar(&escResolveNote, "note", "", "Free-form resolution description")

	escalationsCmd.AddCommand(escalationsListCmd)
	escalationsCmd.AddCommand(escalationsShowCmd)
	escalationsCmd.AddCommand(escalationsResolveCmd)
	rootCmd.AddCommand(escalationsCmd)
}

func escalationFilter() types.EscalationFilter {
	filter := types.EscalationFilter{
		ResourceID: escListResource,
		Type:       types.EscalationType(escListType),
		Severity:   types.Severity(escListSeverity),
		Limit:      escListLimit,
	}
	if !escListAll {
		open := false
		filter.Resolved = &open
	}
	return filter
}

func runEscalationsList(cmd *cobra.Command, args []string) error {
	if escListWatch {
		return watchEscalations()
	}
	escalations, err := store.ListEscalations(rootCtx, escalationFilter())
	if err != nil {
		return fmt.Errorf("listing escalations: %w", err)
	}
	renderEscalations(escalations)
	return nil
}

// watchEscalations re-renders the list whenever the database file changes,
// debounced so bursts of writes repaint once.
func watchEscalations() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(tammaDir); err != nil {
		return fmt.Errorf("watching %s: %w", tammaDir, err)
	}

	render := func() error {
		escalations, err := store.ListEscalations(rootCtx, escalationFilter())
		if err != nil {
			return fmt.Errorf("listing escalations: %w", err)
		}
		if !jsonOutput {
			fmt.Print("\033[H\033[2J") // clear screen
			fmt.Printf("Watching escalations (Ctrl+C to stop) — %s\n\n", time.Now().Format("15:04:05"))
		}
		renderEscalations(escalations)
		return nil
	}
	if err := render(); err != nil {
		return err
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	redraw := make(chan struct{}, 1)

	for {
		select {
		case <-rootCtx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Only the database files matter, not policies or config edits.
			if !strings.Contains(filepath.Base(event.Name), "tamma.db") {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case redraw <- struct{}{}:
				default:
				}
			})
		case <-redraw:
			if err := render(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func renderEscalations(escalations []*types.Escalation) {
	if jsonOutput {
		for _, esc := range escalations {
			printJSON(esc)
		}
		return
	}
	if len(escalations) == 0 {
		fmt.Println("No escalations.")
		return
	}
	for _, esc := range escalations {
		status := "open"
		if esc.Resolved() {
			status = fmt.Sprintf("resolved by %s (%s)", esc.Resolution.Actor, esc.Resolution.Action)
		}
		fmt.Printf("%s  %-8s  %-22s  %-12s  %s\n",
			esc.ID, esc.Severity, esc.Type, esc.ResourceID, status)
		if verboseFlag {
			fmt.Printf("    %s\n", esc.Reason)
		}
	}
}

func runEscalationsShow(cmd *cobra.Command, args []string) error {
	esc, err := store.GetEscalation(rootCtx, args[0])
	if err != nil {
		return fmt.Errorf("loading escalation: %w", err)
	}
	if jsonOutput {
		printJSON(esc)
		return nil
	}

	fmt.Printf("ID:        %s\n", esc.ID)
	fmt.Printf("Type:      %s\n", esc.Type)
	fmt.Printf("Severity:  %s\n", esc.Severity)
	fmt.Printf("Resource:  %s\n", esc.ResourceID)
	if esc.SessionID != "" {
		fmt.Printf("Session:   %s\n", esc.SessionID)
	}
	if esc.OperationID != "" {
		fmt.Printf("Operation: %s\n", esc.OperationID)
	}
	fmt.Printf("Created:   %s\n", esc.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Reason:    %s\n", esc.Reason)
	if len(esc.RetryHistory) > 0 {
		fmt.Printf("Attempts:\n")
		for _, a := range esc.RetryHistory {
			fmt.Printf("  #%d  %s  %s  %s\n", a.Attempt, a.At.Format(time.RFC3339), a.Classification, a.Error)
		}
	}
	if esc.Resolved() {
		r := esc.Resolution
		fmt.Printf("Resolved:  %s by %s (%s)", r.ResolvedAt.Format(time.RFC3339), r.Actor, r.Action)
		if r.Description != "" {
			fmt.Printf(" — %s", r.Description)
		}
		fmt.Println()
	} else {
		fmt.Printf("Status:    open\n")
	}
	return nil
}

func runEscalationsResolve(cmd *cobra.Command, args []string) error {
	action := types.ResolutionAction(escResolveAction)
	switch action {
	case types.ActionStop, types.ActionResume, types.ActionDismiss:
	default:
		return fmt.Errorf("invalid --action %q: want stop, resume, or dismiss", escResolveAction)
	}

	manager := escalation.NewManager(store, log)
	res := types.Resolution{
		Actor:       getActor(),
		Action:      action,
		Description: escResolveNote,
		Channel:     "cli",
	}
	if err := manager.Resolve(rootCtx, args[0], res); err != nil {
		return fmt.Errorf("resolving escalation: %w", err)
	}

	if !quietFlag {
		fmt.Printf("Resolved %s (%s by %s)\n", args[0], action, res.Actor)
	}
	return nil
}
