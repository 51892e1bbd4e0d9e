package tailer

import (
	"testing"
	"time"

	"novawatch/pkg/models"
)

func TestParseEveLineAlert(t *testing.T) {
	line := []byte(`{"timestamp":"2026-03-01T10:15:30.123456+0000","event_type":"alert","src_ip":"192.0.2.7","dest_ip":"10.0.0.1","src_port":4444,"dest_port":80,"proto":"tcp","alert":{"signature":"ET EXPLOIT test rce","signature_id":2101,"category":"Attempted Admin Privilege Gain","priority":2}}`)

	rec, err := ParseEveLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if rec.Protocol != "TCP" {
		t.Fatalf("expected protocol upper-cased, got %s", rec.Protocol)
	}
	if rec.SignatureID != 2101 || rec.Priority != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	want := time.Date(2026, 3, 1, 10, 15, 30, 123456000, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp: %v", rec.Timestamp)
	}
	if rec.Raw == nil {
		t.Fatalf("expected raw document retained")
	}
}

func TestParseEveLineSkipsNonAlertEvents(t *testing.T) {
	rec, err := ParseEveLine([]byte(`{"timestamp":"2026-03-01T10:00:00Z","event_type":"dns","src_ip":"1.1.1.1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec != nil {
		t.Fatalf("dns event should be skipped, got %+v", rec)
	}

	rec, err = ParseEveLine([]byte("   \n"))
	if err != nil || rec != nil {
		t.Fatalf("blank line should be skipped, got %+v, %v", rec, err)
	}
}

func TestParseEveLineRejectsBadJSON(t *testing.T) {
	if _, err := ParseEveLine([]byte("{broken")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseEveLineDefaultsSignature(t *testing.T) {
	rec, err := ParseEveLine([]byte(`{"timestamp":"2026-03-01T10:00:00Z","event_type":"alert","src_ip":"1.1.1.1","dest_ip":"2.2.2.2","proto":"udp","alert":{"signature_id":9,"priority":3}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec.Signature != "Unknown Alert" {
		t.Fatalf("expected default signature, got %q", rec.Signature)
	}
}

func TestAlertFromRecord(t *testing.T) {
	rec := &models.IDSAlertRecord{
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		SrcIP:       "192.0.2.7",
		DestIP:      "10.0.0.1",
		SrcPort:     4444,
		DestPort:    80,
		Protocol:    "TCP",
		Signature:   "ET TROJAN backdoor beacon",
		SignatureID: 2101,
		Priority:    1,
		Category:    "A Network Trojan was detected",
	}

	a := AlertFromRecord(rec)
	if a.Source != "Suricata IDS" {
		t.Fatalf("unexpected source: %s", a.Source)
	}
	if a.Type != "Malware" {
		t.Fatalf("expected Malware type for trojan signature, got %s", a.Type)
	}
	if a.Severity != models.SeverityCritical {
		t.Fatalf("priority 1 should map to CRITICAL, got %s", a.Severity)
	}
	if a.EntityID != "192.0.2.7" {
		t.Fatalf("unexpected entity: %s", a.EntityID)
	}
	want := "ET TROJAN backdoor beacon (TCP 192.0.2.7:4444 -> 10.0.0.1:80)"
	if a.Description != want {
		t.Fatalf("unexpected description: %s", a.Description)
	}
	if a.Fingerprint == "" || a.ID == "" {
		t.Fatalf("alert missing fingerprint or id: %+v", a)
	}
}

func TestCategorizeKeywords(t *testing.T) {
	cases := map[string]string{
		"ET TROJAN known malware": "Malware",
		"possible syn flood":      "Network Attack",
		"remote EXPLOIT attempt":  "Exploitation",
		"botnet c2 checkin":       "C2 Communication",
		"SQL injection in http":   "Web Attack",
		"something else entirely": "General",
	}
	for sig, want := range cases {
		if got := categorize(sig); got != want {
			t.Fatalf("categorize(%q): expected %s, got %s", sig, want, got)
		}
	}
}

func TestDedupeKeyStable(t *testing.T) {
	rec := &models.IDSAlertRecord{SrcIP: "1.1.1.1", DestIP: "2.2.2.2", SignatureID: 42}
	a := dedupeKey(rec)
	b := dedupeKey(rec)
	if a != b {
		t.Fatalf("dedupe key not deterministic: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("expected 12-char key, got %q", a)
	}

	other := &models.IDSAlertRecord{SrcIP: "1.1.1.1", DestIP: "2.2.2.2", SignatureID: 43}
	if dedupeKey(other) == a {
		t.Fatalf("different signature ids should have different keys")
	}
}
