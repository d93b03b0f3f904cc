package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entry counts per trust level",
	RunE:  statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	byLevel := make(map[trust.Level][]string, len(trust.Levels()))
	for _, lvl := range trust.Levels() {
		byLevel[lvl] = app.pipe.ListByTrustLevel(lvl, -1)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(byLevel)
	}

	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("  ContentGuard Trust Ledger")
	fmt.Println("═══════════════════════════════════════════")
	for _, lvl := range trust.Levels() {
		fmt.Printf("  %-12s %d\n", lvl, len(byLevel[lvl]))
	}
	fmt.Println("═══════════════════════════════════════════")

	printIDList("Flagged entries", byLevel[trust.Flagged])
	printIDList("Quarantined entries", byLevel[trust.Quarantined])
	return nil
}

func printIDList(label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("  %s:\n", label)
	limit := len(ids)
	if limit > 10 {
		limit = 10
	}
	for _, id := range ids[:limit] {
		fmt.Printf("    %s\n", id)
	}
	if len(ids) > limit {
		fmt.Printf("    ... and %d more\n", len(ids)-limit)
	}
}
