package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DollhouseMCP/contentguard/internal/config"
	"github.com/DollhouseMCP/contentguard/internal/signature"
	"github.com/DollhouseMCP/contentguard/internal/trust"
	"github.com/DollhouseMCP/contentguard/internal/unicode"
	"github.com/DollhouseMCP/contentguard/internal/validator"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>...",
	Short: "Validate files without touching the entry store",
	Long: `Run the full validation pass (Unicode normalization, structural
parsing, signature matching) over one or more files and report the
decision for each. Nothing is persisted.

  contentguard scan persona.yaml skills/*.yaml

Exits non-zero if any file would be flagged or quarantined.`,
	Args: cobra.MinimumNArgs(1),
	RunE: scanCommand,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

type scanReport struct {
	File     string            `json:"file"`
	Decision trust.Decision    `json:"decision"`
	Matches  []signature.Match `json:"matches,omitempty"`
	Findings []unicode.Finding `json:"findings,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func scanCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	catalog, err := signature.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading signature catalog: %w", err)
	}
	v := validator.New(catalog, validator.Options{
		Limits:  parserLimits(cfg.Parser),
		Timeout: cfg.Validator.Timeout,
	}, zap.NewNop())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var reports []scanReport
	unclean := 0
	for _, path := range args {
		rep := scanFile(ctx, v, path)
		if rep.Decision != trust.DecisionPass || rep.Error != "" {
			unclean++
		}
		reports = append(reports, rep)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printScanReports(reports)
	}

	if unclean > 0 {
		return fmt.Errorf("%d of %d files did not pass", unclean, len(reports))
	}
	return nil
}

func scanFile(ctx context.Context, v *validator.Validator, path string) scanReport {
	rep := scanReport{File: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	out := v.Validate(ctx, filepath.Base(path), raw)
	rep.Decision = out.Result.Decision
	rep.Matches = out.Matches
	rep.Findings = out.Findings
	return rep
}

func printScanReports(reports []scanReport) {
	for _, rep := range reports {
		if rep.Error != "" {
			fmt.Printf("❓ %-40s read error: %s\n", rep.File, rep.Error)
			continue
		}
		fmt.Printf("%s %-40s %s\n", decisionIcon(rep.Decision), rep.File, rep.Decision)
		for _, m := range rep.Matches {
			fmt.Printf("     [%s/%s] %s: %s\n", m.Category, m.Severity, m.SignatureID, m.Detail)
		}
		for _, f := range rep.Findings {
			fmt.Printf("     [unicode/%s] %s at byte %d (%s)\n", f.Severity, f.Category, f.Position, f.Codepoint)
		}
	}
}

func decisionIcon(d trust.Decision) string {
	switch d {
	case trust.DecisionQuarantine:
		return "🛑"
	case trust.DecisionFlag:
		return "🔍"
	case trust.DecisionPass:
		return "✅"
	default:
		return "❓"
	}
}
