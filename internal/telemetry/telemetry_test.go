package telemetry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

func TestCollector_Bounded(t *testing.T) {
	const capacity = 10
	c := NewCollector(capacity)
	for i := 0; i < capacity+5; i++ {
		c.Record(AttackRecord{
			Vector:   fmt.Sprintf("v%d", i),
			Severity: trust.SeverityMedium,
		})
	}
	if c.Len() != capacity {
		t.Fatalf("len = %d, want %d", c.Len(), capacity)
	}
	snap := c.ExportSnapshot()
	if snap.TotalRecords != capacity {
		t.Errorf("snapshot total = %d, want %d", snap.TotalRecords, capacity)
	}
	// The oldest five were evicted.
	for i := 0; i < 5; i++ {
		if _, ok := snap.PerVector[fmt.Sprintf("v%d", i)]; ok {
			t.Errorf("v%d should have been evicted", i)
		}
	}
	if snap.PerVector["v14"] != 1 {
		t.Error("newest record missing")
	}
}

func TestCollector_SnapshotAggregates(t *testing.T) {
	c := NewCollector(100)
	base := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	c.Record(AttackRecord{Timestamp: base, Vector: "injection", Severity: trust.SeverityHigh})
	c.Record(AttackRecord{Timestamp: base.Add(10 * time.Minute), Vector: "injection", Severity: trust.SeverityMedium})
	c.Record(AttackRecord{Timestamp: base.Add(90 * time.Minute), Vector: "xss", Severity: trust.SeverityHigh})

	snap := c.ExportSnapshot()
	if snap.PerVector["injection"] != 2 || snap.PerVector["xss"] != 1 {
		t.Errorf("per vector = %v", snap.PerVector)
	}
	if snap.PerSeverity["HIGH"] != 2 || snap.PerSeverity["MEDIUM"] != 1 {
		t.Errorf("per severity = %v", snap.PerSeverity)
	}
	if snap.PerHourBuckets["2026-08-29T10"] != 2 || snap.PerHourBuckets["2026-08-29T12"] != 1 {
		t.Errorf("per hour = %v", snap.PerHourBuckets)
	}
	if !snap.WindowStart.Equal(base) {
		t.Errorf("window start = %v", snap.WindowStart)
	}
	if !snap.WindowEnd.Equal(base.Add(90 * time.Minute)) {
		t.Errorf("window end = %v", snap.WindowEnd)
	}
}

func TestCollector_SnapshotIdempotent(t *testing.T) {
	c := NewCollector(10)
	c.Record(AttackRecord{Vector: "command", Severity: trust.SeverityCritical})
	a := c.ExportSnapshot()
	b := c.ExportSnapshot()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("snapshots differ with no new events:\n%+v\n%+v", a, b)
	}
}

func TestSnapshot_JSONSerializable(t *testing.T) {
	c := NewCollector(10)
	c.Record(AttackRecord{Vector: "exfiltration", Severity: trust.SeverityHigh})
	data, err := json.Marshal(c.ExportSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	var round Snapshot
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatal(err)
	}
	if round.PerVector["exfiltration"] != 1 {
		t.Errorf("round trip lost data: %+v", round)
	}
}
