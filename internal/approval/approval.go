// Package approval asks the operator to confirm re-ingestion of
// quarantined content. Quarantine is terminal by design, so leaving it
// always requires a human in the loop; non-interactive sessions are
// denied automatically.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes the quarantined entry the operator is about to
// release back into validation.
type Prompt struct {
	EntryID    string
	Level      trust.Level
	MatchedIDs []string
	Reasons    []string
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask prompts on stderr and reads the decision from stdin. Without a
// terminal it denies without prompting.
func Ask(p Prompt) Result {
	if !IsInteractive() {
		return Result{Approved: false, UserAction: "auto_deny_non_interactive"}
	}
	return ask(p, os.Stdin, os.Stderr)
}

func ask(p Prompt, in io.Reader, out io.Writer) Result {
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              ⚠️  RE-INGESTION APPROVAL REQUIRED               ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Entry: %s (currently %s)\n", p.EntryID, p.Level)
	fmt.Fprintln(out, "")

	if len(p.MatchedIDs) > 0 {
		fmt.Fprintf(out, "Matched signatures: %s\n", strings.Join(p.MatchedIDs, ", "))
	}
	if len(p.Reasons) > 0 {
		fmt.Fprintln(out, "Reasons:")
		for _, reason := range p.Reasons {
			fmt.Fprintf(out, "  • %s\n", reason)
		}
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Re-ingesting replaces the entry's content and restarts validation")
	fmt.Fprintln(out, "from UNTRUSTED. The new content is scanned before any use.")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  [a] Approve - re-ingest and validate the new content")
	fmt.Fprintln(out, "  [d] Deny - keep the entry quarantined")
	fmt.Fprintln(out, "")

	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "Your choice [a/d]: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return Result{Approved: false, UserAction: "error_reading_input"}
		}

		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "a", "approve", "yes", "y":
			return Result{Approved: true, UserAction: "approve"}
		case "d", "deny", "no", "n":
			return Result{Approved: false, UserAction: "deny"}
		default:
			fmt.Fprintln(out, "Invalid input. Please enter 'a' to approve or 'd' to deny.")
		}
	}
}
