package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Severity is the ordered threat-level classification attached to alerts.
// SeverityOK is a sentinel below INFO used as the threat level of an empty
// alert collection ("All Systems Normal"); alerts themselves never carry it.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityInfo
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the canonical wire form of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "LOW"
	}
}

// ParseSeverity maps a wire string to a Severity. Unknown values map to LOW.
func ParseSeverity(raw string) Severity {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OK":
		return SeverityOK
	case "INFO":
		return SeverityInfo
	case "LOW":
		return SeverityLow
	case "MEDIUM":
		return SeverityMedium
	case "HIGH":
		return SeverityHigh
	case "CRITICAL":
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// MarshalJSON encodes the severity as its wire string.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its wire string.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// severityByType maps alert types to their static severity.
var severityByType = map[string]Severity{
	"High Temp":            SeverityHigh,
	"Low Battery":          SeverityHigh,
	"High CPU":             SeverityMedium,
	"Unauthorized Command": SeverityHigh,
	"Critical Command":     SeverityCritical,
	"Failed Login":         SeverityLow,
	"DDoS":                 SeverityHigh,
	"Large Packet":         SeverityMedium,
	"GPS Spoofing":         SeverityHigh,
	"GPS Accuracy":         SeverityMedium,
	"GPS Jamming":          SeverityHigh,
	"GPS Speed Gate":       SeverityHigh,
	"Solar Flare":          SeverityMedium,
	"CME":                  SeverityHigh,
	"Geomagnetic Storm":    SeverityHigh,
	"Radiation Storm":      SeverityHigh,
	"Rate Anomaly":         SeverityLow,
}

// SeverityFromType returns the static severity for an alert type.
// Unknown types default to LOW.
func SeverityFromType(alertType string) Severity {
	if sev, ok := severityByType[alertType]; ok {
		return sev
	}
	return SeverityLow
}

// SeverityFromIDSPriority maps a Suricata alert priority to a severity.
// Priorities outside 1..3 (including unparsable ones) map to MEDIUM,
// except explicit lower priorities which map to LOW.
func SeverityFromIDSPriority(priority int) Severity {
	switch priority {
	case 1:
		return SeverityCritical
	case 2:
		return SeverityHigh
	case 3:
		return SeverityMedium
	}
	if priority > 3 {
		return SeverityLow
	}
	return SeverityMedium
}

// SeverityFromSigmaLevel maps a Sigma rule level to a severity.
func SeverityFromSigmaLevel(level string) Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "informational":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// Alert is the canonical deduplicated output record.
type Alert struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Type        string            `json:"type"`
	Severity    Severity          `json:"severity"`
	Timestamp   time.Time         `json:"timestamp"`
	EntityID    string            `json:"entity_id,omitempty"`
	Labels      map[string]string `json:"labels"`
	Description string            `json:"description"`
	Fingerprint string            `json:"fingerprint"`
}

// ThreatLevel folds a collection of alerts into its overall threat level:
// the severity of the maximum-ranked member, first encountered on ties.
// An empty collection is SeverityOK.
func ThreatLevel(alerts []*Alert) Severity {
	level := SeverityOK
	for _, a := range alerts {
		if a == nil {
			continue
		}
		if a.Severity > level {
			level = a.Severity
		}
	}
	return level
}
