package signature

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Shell checks parse command-looking lines with a real shell grammar
// instead of regex, which survives flag reordering, sudo wrapping and
// quoting tricks. Each named check is referenced from a signature's
// shell field.
const (
	shellCheckPipeToShell = "pipe-to-shell"
	shellCheckRemoveRoot  = "remove-root"
	shellCheckDeviceWrite = "device-write"
)

func knownShellCheck(name string) bool {
	switch name {
	case shellCheckPipeToShell, shellCheckRemoveRoot, shellCheckDeviceWrite:
		return true
	}
	return false
}

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
}

var downloaders = map[string]bool{
	"curl": true, "wget": true, "fetch": true,
}

// runShellCheck parses each line of text that plausibly contains a shell
// command and applies the named check. Unparseable lines are skipped: the
// regex signatures still cover them.
func runShellCheck(name, text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !plausibleCommand(line) {
			continue
		}
		parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
		file, err := parser.Parse(strings.NewReader(line), "")
		if err != nil {
			continue
		}
		if detail, ok := checkFile(name, file); ok {
			return detail, true
		}
	}
	return "", false
}

// plausibleCommand filters prose before paying for a shell parse.
func plausibleCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	head := strings.TrimPrefix(fields[0], "sudo")
	if head == "" && len(fields) > 1 {
		head = fields[1]
	}
	switch {
	case downloaders[head], shellInterpreters[head]:
		return true
	case head == "rm", head == "dd", head == "sudo":
		return true
	}
	return strings.Contains(line, "|") && (strings.Contains(line, "curl") || strings.Contains(line, "wget"))
}

func checkFile(name string, file *syntax.File) (string, bool) {
	for _, stmt := range file.Stmts {
		if detail, ok := checkCommand(name, stmt.Cmd); ok {
			return detail, true
		}
		if name == shellCheckDeviceWrite {
			for _, redir := range stmt.Redirs {
				if isDevicePath(wordText(redir.Word)) {
					return "output redirected to a raw device", true
				}
			}
		}
	}
	return "", false
}

func checkCommand(name string, cmd syntax.Command) (string, bool) {
	switch c := cmd.(type) {
	case *syntax.BinaryCmd:
		if name == shellCheckPipeToShell && c.Op == syntax.Pipe {
			left := firstExecutable(c.X.Cmd)
			right := firstExecutable(c.Y.Cmd)
			if downloaders[left] && shellInterpreters[right] {
				return "downloaded content piped into a shell interpreter", true
			}
		}
		if detail, ok := checkCommand(name, c.X.Cmd); ok {
			return detail, true
		}
		return checkCommand(name, c.Y.Cmd)

	case *syntax.CallExpr:
		return checkCall(name, c)

	case *syntax.Subshell:
		for _, stmt := range c.Stmts {
			if detail, ok := checkCommand(name, stmt.Cmd); ok {
				return detail, true
			}
		}

	case *syntax.Block:
		for _, stmt := range c.Stmts {
			if detail, ok := checkCommand(name, stmt.Cmd); ok {
				return detail, true
			}
		}
	}
	return "", false
}

func checkCall(name string, call *syntax.CallExpr) (string, bool) {
	args := callArgs(call)
	if len(args) == 0 {
		return "", false
	}
	// sudo wrapping is transparent.
	if args[0] == "sudo" {
		args = args[1:]
		if len(args) == 0 {
			return "", false
		}
	}

	switch name {
	case shellCheckRemoveRoot:
		if args[0] != "rm" {
			return "", false
		}
		recursive, force := false, false
		var targets []string
		for _, a := range args[1:] {
			switch {
			case a == "--recursive":
				recursive = true
			case a == "--force":
				force = true
			case strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--"):
				if strings.ContainsAny(a, "rR") {
					recursive = true
				}
				if strings.Contains(a, "f") {
					force = true
				}
			case !strings.HasPrefix(a, "-"):
				targets = append(targets, a)
			}
		}
		if recursive && force {
			for _, tgt := range targets {
				if tgt == "/" || tgt == "/*" || strings.HasPrefix(tgt, "/ ") {
					return "recursive force remove of filesystem root", true
				}
			}
		}

	case shellCheckDeviceWrite:
		if args[0] != "dd" {
			return "", false
		}
		for _, a := range args[1:] {
			if strings.HasPrefix(a, "of=") && isDevicePath(strings.TrimPrefix(a, "of=")) {
				return "dd writing to a raw device", true
			}
		}
	}
	return "", false
}

func callArgs(call *syntax.CallExpr) []string {
	var args []string
	for _, w := range call.Args {
		args = append(args, wordText(w))
	}
	return args
}

func firstExecutable(cmd syntax.Command) string {
	call, ok := cmd.(*syntax.CallExpr)
	if !ok || len(call.Args) == 0 {
		return ""
	}
	return wordText(call.Args[0])
}

// wordText flattens a word's literal parts. Expansions come back empty,
// which is the safe direction: we never mistake "$x" for a known name.
func wordText(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}

func isDevicePath(path string) bool {
	return strings.HasPrefix(path, "/dev/sd") ||
		strings.HasPrefix(path, "/dev/nvme") ||
		strings.HasPrefix(path, "/dev/disk") ||
		strings.HasPrefix(path, "/dev/hd")
}
