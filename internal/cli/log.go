package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DollhouseMCP/contentguard/internal/audit"
	"github.com/DollhouseMCP/contentguard/internal/config"
	"github.com/DollhouseMCP/contentguard/internal/trust"
)

var (
	logFilterDecision string
	logFilterEntry    string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the validation audit log",
	Long: `View the ContentGuard audit log with filtering and summary options.

Examples:
  contentguard log                         # Show all records
  contentguard log --last 20               # Show last 20 records
  contentguard log --decision quarantine   # Show only quarantines
  contentguard log --entry persona-7       # Show one entry's history
  contentguard log --summary               # Show summary statistics`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (pass, flag, quarantine)")
	logCmd.Flags().StringVar(&logFilterEntry, "entry", "", "Filter by entry id")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N records")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	alog, err := audit.Open(cfg.AuditLog)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer alog.Close()

	events, err := alog.ReadAll()
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}

	filtered := filterEvents(events)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printLogSummary(events)
		return nil
	}
	printEvents(filtered)
	return nil
}

func filterEvents(events []audit.Event) []audit.Event {
	if logFilterDecision == "" && logFilterEntry == "" {
		return events
	}
	var filtered []audit.Event
	for _, e := range events {
		if logFilterDecision != "" && !strings.EqualFold(string(e.Decision), logFilterDecision) {
			continue
		}
		if logFilterEntry != "" && e.EntryID != logFilterEntry {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(events []audit.Event) {
	for _, e := range events {
		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%s %s %s %s -> %s\n", decisionIcon(e.Decision), ts, e.EntryID, e.TrustFrom, e.TrustTo)
		if len(e.MatchedIDs) > 0 {
			fmt.Printf("     Signatures: %s\n", strings.Join(e.MatchedIDs, ", "))
		}
		fmt.Printf("     Took: %s\n", time.Duration(e.DurationUs)*time.Microsecond)
		fmt.Println()
	}
}

func printLogSummary(all []audit.Event) {
	counts := map[trust.Decision]int{}
	entries := map[string]struct{}{}
	for _, e := range all {
		counts[e.Decision]++
		entries[e.EntryID] = struct{}{}
	}

	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("  ContentGuard Audit Summary")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  Total records:   %d\n", len(all))
	fmt.Printf("  Distinct entries:%d\n", len(entries))
	fmt.Printf("  pass:            %d\n", counts[trust.DecisionPass])
	fmt.Printf("  flag:            %d\n", counts[trust.DecisionFlag])
	fmt.Printf("  quarantine:      %d\n", counts[trust.DecisionQuarantine])
	fmt.Println("═══════════════════════════════════════════")

	if len(all) > 0 {
		fmt.Printf("  First record:    %s\n", all[0].Timestamp.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("  Last record:     %s\n", all[len(all)-1].Timestamp.Local().Format("2006-01-02 15:04:05"))
	}

	var quarantined []audit.Event
	for _, e := range all {
		if e.Decision == trust.DecisionQuarantine {
			quarantined = append(quarantined, e)
		}
	}
	if len(quarantined) > 0 {
		fmt.Println()
		fmt.Println("  Recent quarantines:")
		limit := len(quarantined)
		if limit > 10 {
			limit = 10
		}
		for _, e := range quarantined[len(quarantined)-limit:] {
			fmt.Printf("    %s %s (%s)\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.EntryID, strings.Join(e.MatchedIDs, ", "))
		}
	}
	fmt.Println()
}
