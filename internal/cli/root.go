// Package cli implements the contentguard command line surface on top of
// the validation pipeline.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DollhouseMCP/contentguard/internal/audit"
	"github.com/DollhouseMCP/contentguard/internal/config"
	"github.com/DollhouseMCP/contentguard/internal/ledger"
	"github.com/DollhouseMCP/contentguard/internal/logging"
	"github.com/DollhouseMCP/contentguard/internal/pipeline"
	"github.com/DollhouseMCP/contentguard/internal/signature"
	"github.com/DollhouseMCP/contentguard/internal/structural"
	"github.com/DollhouseMCP/contentguard/internal/telemetry"
	"github.com/DollhouseMCP/contentguard/internal/validator"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "contentguard",
	Short: "ContentGuard - content security validation for AI element stores",
	Long: `ContentGuard validates persona, skill and memory content before an AI
assistant ever uses it: Unicode evasion stripping, fail-closed structural
parsing, linear-time signature matching and a trust ledger that keeps
quarantined content from reaching the model.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.contentguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")
}

func Execute() error {
	return rootCmd.Execute()
}

// app bundles the long-lived components a command needs. Close releases
// the database and audit file.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	catalog  *signature.Catalog
	store    *ledger.SQLiteStore
	ledger   *ledger.Ledger
	auditLog *audit.Log
	pipe     *pipeline.Pipeline
}

func (a *app) Close() {
	if a.auditLog != nil {
		a.auditLog.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		a.log.Sync()
	}
}

// openApp builds the persistent pipeline from configuration. Every
// command that touches the entry store goes through here.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}
	catalog, err := signature.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading signature catalog: %w", err)
	}
	store, err := ledger.OpenSQLite(cfg.EntryDB)
	if err != nil {
		return nil, fmt.Errorf("opening entry database: %w", err)
	}
	led, err := ledger.New(ctx, store, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("warming trust ledger: %w", err)
	}
	auditLog, err := audit.Open(cfg.AuditLog)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	v := validator.New(catalog, validator.Options{
		Limits:  parserLimits(cfg.Parser),
		Timeout: cfg.Validator.Timeout,
	}, log)
	collector := telemetry.NewCollector(cfg.Telemetry.BufferCapacity)

	return &app{
		cfg:      cfg,
		log:      log,
		catalog:  catalog,
		store:    store,
		ledger:   led,
		auditLog: auditLog,
		pipe:     pipeline.New(v, led, auditLog, collector, log),
	}, nil
}

func parserLimits(pc config.ParserConfig) structural.Limits {
	return structural.Limits{
		MaxInputBytes:     pc.MaxInputBytes,
		MaxDepth:          pc.MaxDepth,
		MaxNodes:          pc.MaxNodes,
		MaxAliasCount:     pc.MaxAliasCount,
		MaxExpansionRatio: pc.MaxExpansionRatio,
	}
}
