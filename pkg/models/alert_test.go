package models

import (
	"encoding/json"
	"testing"
)

func TestThreatLevelEmptyIsOK(t *testing.T) {
	if got := ThreatLevel(nil); got != SeverityOK {
		t.Fatalf("expected ok sentinel for empty collection, got %s", got)
	}
}

func TestThreatLevelPicksMaximum(t *testing.T) {
	alerts := []*Alert{
		{Severity: SeverityLow},
		{Severity: SeverityCritical},
		{Severity: SeverityHigh},
	}
	if got := ThreatLevel(alerts); got != SeverityCritical {
		t.Fatalf("expected CRITICAL, got %s", got)
	}
}

func TestSeverityFromTypeDefaultsToLow(t *testing.T) {
	if got := SeverityFromType("Critical Command"); got != SeverityCritical {
		t.Fatalf("expected CRITICAL for Critical Command, got %s", got)
	}
	if got := SeverityFromType("Never Seen Before"); got != SeverityLow {
		t.Fatalf("expected LOW for unknown type, got %s", got)
	}
}

func TestSeverityFromIDSPriority(t *testing.T) {
	cases := map[int]Severity{
		1:  SeverityCritical,
		2:  SeverityHigh,
		3:  SeverityMedium,
		7:  SeverityLow,
		0:  SeverityMedium,
		-1: SeverityMedium,
	}
	for priority, want := range cases {
		if got := SeverityFromIDSPriority(priority); got != want {
			t.Fatalf("priority %d: expected %s, got %s", priority, want, got)
		}
	}
}

func TestSeverityJSONUsesWireStrings(t *testing.T) {
	body, err := json.Marshal(SeverityHigh)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `"HIGH"` {
		t.Fatalf("expected \"HIGH\", got %s", body)
	}

	var s Severity
	if err := json.Unmarshal([]byte(`"critical"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != SeverityCritical {
		t.Fatalf("expected CRITICAL, got %s", s)
	}

	if err := json.Unmarshal([]byte(`"bogus"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != SeverityLow {
		t.Fatalf("expected unknown severity to map to LOW, got %s", s)
	}
}
