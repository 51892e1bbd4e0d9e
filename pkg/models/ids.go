package models

import "time"

// IDSAlertRecord is one Suricata eve alert parsed from the tailed log.
// Raw keeps the decoded eve document for the optional Sigma stage and is
// never persisted.
type IDSAlertRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	SrcIP       string    `json:"src_ip"`
	DestIP      string    `json:"dest_ip"`
	SrcPort     int       `json:"src_port"`
	DestPort    int       `json:"dest_port"`
	Protocol    string    `json:"protocol"`
	Signature   string    `json:"signature"`
	SignatureID int       `json:"signature_id"`
	Priority    int       `json:"priority"`
	Category    string    `json:"category"`

	Raw map[string]interface{} `json:"-"`
}
