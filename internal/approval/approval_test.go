package approval

import (
	"bytes"
	"strings"
	"testing"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

func TestAskApprove(t *testing.T) {
	var out bytes.Buffer
	res := ask(Prompt{
		EntryID:    "skill-7",
		Level:      trust.Quarantined,
		MatchedIDs: []string{"cmd-pipe-to-shell"},
	}, strings.NewReader("a\n"), &out)

	if !res.Approved {
		t.Error("expected approval")
	}
	if res.UserAction != "approve" {
		t.Errorf("UserAction = %q", res.UserAction)
	}
	if !strings.Contains(out.String(), "cmd-pipe-to-shell") {
		t.Error("prompt should name the matched signatures")
	}
}

func TestAskDeny(t *testing.T) {
	var out bytes.Buffer
	res := ask(Prompt{EntryID: "x", Level: trust.Quarantined}, strings.NewReader("n\n"), &out)
	if res.Approved {
		t.Error("expected denial")
	}
}

func TestAskRetriesOnGarbage(t *testing.T) {
	var out bytes.Buffer
	res := ask(Prompt{EntryID: "x", Level: trust.Quarantined}, strings.NewReader("what\nd\n"), &out)
	if res.Approved || res.UserAction != "deny" {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(out.String(), "Invalid input") {
		t.Error("expected a retry prompt")
	}
}

func TestAskEOFDenies(t *testing.T) {
	var out bytes.Buffer
	res := ask(Prompt{EntryID: "x", Level: trust.Quarantined}, strings.NewReader(""), &out)
	if res.Approved {
		t.Error("EOF must deny")
	}
}
