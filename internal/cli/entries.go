package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DollhouseMCP/contentguard/internal/approval"
	"github.com/DollhouseMCP/contentguard/internal/ledger"
	"github.com/DollhouseMCP/contentguard/internal/trust"
)

var (
	ingestOrigin  string
	forceReingest bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <entry-id> <file>",
	Short: "Register and validate new content in the entry store",
	Args:  cobra.ExactArgs(2),
	RunE:  ingestCommand,
}

var reingestCmd = &cobra.Command{
	Use:   "reingest <entry-id> <file>",
	Short: "Replace an entry's content and restart validation from UNTRUSTED",
	Long: `Replace an entry's content and validate the replacement from scratch.
This is the only way a quarantined entry can return to service; releasing
one asks for interactive confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(2),
	RunE: reingestCommand,
}

var getCmd = &cobra.Command{
	Use:   "get <entry-id>",
	Short: "Print an entry's content, refusing quarantined entries",
	Args:  cobra.ExactArgs(1),
	RunE:  getCommand,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <entry-id>",
	Short: "Remove an entry and its validation history",
	Args:  cobra.ExactArgs(1),
	RunE:  destroyCommand,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOrigin, "origin", "local", "Content origin: local, imported or remote")
	reingestCmd.Flags().StringVar(&ingestOrigin, "origin", "local", "Content origin: local, imported or remote")
	reingestCmd.Flags().BoolVar(&forceReingest, "yes", false, "Skip the quarantine release confirmation")
	rootCmd.AddCommand(ingestCmd, reingestCmd, getCmd, destroyCmd)
}

func parseOrigin(s string) (trust.Origin, error) {
	switch trust.Origin(s) {
	case trust.OriginLocal, trust.OriginImported, trust.OriginRemote:
		return trust.Origin(s), nil
	}
	return "", fmt.Errorf("unknown origin %q (want local, imported or remote)", s)
}

func ingestCommand(cmd *cobra.Command, args []string) error {
	id, path := args[0], args[1]
	origin, err := parseOrigin(ingestOrigin)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	level, err := app.pipe.Ingest(cmd.Context(), id, raw, origin)
	if err != nil {
		return err
	}
	fmt.Printf("%s ingested at %s\n", id, level)
	return nil
}

func reingestCommand(cmd *cobra.Command, args []string) error {
	id, path := args[0], args[1]
	origin, err := parseOrigin(ingestOrigin)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	entry, err := app.ledger.Entry(cmd.Context(), id)
	if err != nil {
		return err
	}
	if entry.Level == trust.Quarantined && !forceReingest {
		var matched []string
		if n := len(entry.History); n > 0 {
			matched = entry.History[n-1].MatchedIDs
		}
		res := approval.Ask(approval.Prompt{
			EntryID:    id,
			Level:      entry.Level,
			MatchedIDs: matched,
		})
		if !res.Approved {
			return fmt.Errorf("re-ingestion denied (%s)", res.UserAction)
		}
	}

	level, err := app.pipe.Reingest(cmd.Context(), id, raw, origin)
	if err != nil {
		return err
	}
	fmt.Printf("%s re-ingested, now %s\n", id, level)
	return nil
}

func getCommand(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	raw, err := app.pipe.Content(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, ledger.ErrQuarantined) {
			return fmt.Errorf("%s is quarantined; its content is not available. Re-ingest clean content to restore it", args[0])
		}
		return err
	}
	_, err = os.Stdout.Write(raw)
	return err
}

func destroyCommand(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.pipe.Destroy(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("%s destroyed\n", args[0])
	return nil
}
