package tailer

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"novawatch/internal/fingerprint"
	"novawatch/pkg/models"
)

// idsSource is the origin tag stamped on alerts derived from the eve log.
const idsSource = "Suricata IDS"

// eveTimeLayouts are the timestamp formats Suricata emits, tried in order.
var eveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

type eveEvent struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	SrcIP     string `json:"src_ip"`
	DestIP    string `json:"dest_ip"`
	SrcPort   int    `json:"src_port"`
	DestPort  int    `json:"dest_port"`
	Proto     string `json:"proto"`
	Alert     struct {
		Signature   string `json:"signature"`
		SignatureID int    `json:"signature_id"`
		Category    string `json:"category"`
		Priority    int    `json:"priority"`
	} `json:"alert"`
}

// ParseEveLine parses one eve.json line. It returns (nil, nil) for events
// that are valid JSON but not of event_type "alert".
func ParseEveLine(line []byte) (*models.IDSAlertRecord, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var ev eveEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("parse eve line: %w", err)
	}
	if ev.EventType != "alert" {
		return nil, nil
	}

	rec := &models.IDSAlertRecord{
		Timestamp:   parseEveTime(ev.Timestamp),
		SrcIP:       ev.SrcIP,
		DestIP:      ev.DestIP,
		SrcPort:     ev.SrcPort,
		DestPort:    ev.DestPort,
		Protocol:    strings.ToUpper(ev.Proto),
		Signature:   ev.Alert.Signature,
		SignatureID: ev.Alert.SignatureID,
		Priority:    ev.Alert.Priority,
		Category:    ev.Alert.Category,
	}
	if rec.Signature == "" {
		rec.Signature = "Unknown Alert"
	}

	// Keep the decoded document for the optional Sigma stage.
	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err == nil {
		rec.Raw = raw
	}

	return rec, nil
}

func parseEveTime(raw string) time.Time {
	for _, layout := range eveTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

// AlertFromRecord converts a parsed eve alert into a candidate Alert for the
// dedup store.
func AlertFromRecord(rec *models.IDSAlertRecord) *models.Alert {
	desc := fmt.Sprintf("%s (%s %s:%d -> %s:%d)",
		rec.Signature, rec.Protocol, rec.SrcIP, rec.SrcPort, rec.DestIP, rec.DestPort)

	return &models.Alert{
		ID:        uuid.NewString(),
		Source:    idsSource,
		Type:      categorize(rec.Signature),
		Severity:  models.SeverityFromIDSPriority(rec.Priority),
		Timestamp: rec.Timestamp,
		EntityID:  rec.SrcIP,
		Labels: map[string]string{
			"signature_id": strconv.Itoa(rec.SignatureID),
			"category":     rec.Category,
			"dest_ip":      rec.DestIP,
		},
		Description: desc,
		Fingerprint: fingerprint.New(idsSource, categorize(rec.Signature), desc, rec.Timestamp),
	}
}

// categorize buckets an IDS signature into a coarse alert type by keyword.
func categorize(signature string) string {
	sig := strings.ToLower(signature)
	switch {
	case containsAny(sig, "trojan", "malware", "backdoor", "virus"):
		return "Malware"
	case containsAny(sig, "dos", "flood", "scan"):
		return "Network Attack"
	case containsAny(sig, "exploit", "shellcode", "rce"):
		return "Exploitation"
	case containsAny(sig, "dns", "domain", "c2", "botnet"):
		return "C2 Communication"
	case containsAny(sig, "web", "http", "sql", "xss"):
		return "Web Attack"
	default:
		return "General"
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// dedupeKey hashes (src_ip, dest_ip, signature_id) for the short dedup window.
func dedupeKey(rec *models.IDSAlertRecord) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s-%d", rec.SrcIP, rec.DestIP, rec.SignatureID)))
	return hex.EncodeToString(sum[:])[:12]
}
