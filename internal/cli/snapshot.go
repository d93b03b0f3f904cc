package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DollhouseMCP/contentguard/internal/audit"
	"github.com/DollhouseMCP/contentguard/internal/config"
	"github.com/DollhouseMCP/contentguard/internal/signature"
	"github.com/DollhouseMCP/contentguard/internal/telemetry"
	"github.com/DollhouseMCP/contentguard/internal/trust"
)

var snapshotWindow time.Duration

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print an attack-pattern telemetry snapshot as JSON",
	Long: `Aggregate recent non-pass validation decisions from the audit log into
the telemetry snapshot format: per-vector counts, per-severity counts and
hourly buckets. Signature ids are mapped to vectors through the active
catalog.`,
	RunE: snapshotCommand,
}

func init() {
	snapshotCmd.Flags().DurationVar(&snapshotWindow, "window", 24*time.Hour, "Only include records newer than this")
	rootCmd.AddCommand(snapshotCmd)
}

func snapshotCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	catalog, err := signature.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading signature catalog: %w", err)
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

	collector := telemetry.NewCollector(cfg.Telemetry.BufferCapacity)
	cutoff := time.Now().Add(-snapshotWindow)
	for _, e := range events {
		if e.Decision == trust.DecisionPass || e.Timestamp.Before(cutoff) {
			continue
		}
		for _, id := range e.MatchedIDs {
			// Timeout and structural rejections carry synthetic ids
			// that are not in the catalog.
			vector, severity := string(signature.CategoryStructuralBomb), trust.SeverityCritical
			if cat, sev, ok := catalog.Lookup(id); ok {
				vector, severity = string(cat), sev
			}
			collector.Record(telemetry.AttackRecord{
				Timestamp: e.Timestamp,
				Vector:    vector,
				Severity:  severity,
			})
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(collector.ExportSnapshot())
}
