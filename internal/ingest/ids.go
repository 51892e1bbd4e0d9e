package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"novawatch/internal/fingerprint"
	"novawatch/internal/logger"
	"novawatch/internal/rules"
	"novawatch/internal/store"
	"novawatch/internal/tailer"
	"novawatch/pkg/models"
)

// sigmaSource is the origin tag stamped on Sigma rule matches.
const sigmaSource = "Sigma"

// IDSIngest drains the eve.json tailer into the alert store, optionally
// running each raw record through the Sigma engine for extra matches.
type IDSIngest struct {
	tailer *tailer.Tailer
	sigma  *rules.SigmaEngine
	store  *store.Store
}

// NewIDSIngest wires a tailer and an optional Sigma engine (nil disables the
// Sigma stage) to a store.
func NewIDSIngest(t *tailer.Tailer, sigma *rules.SigmaEngine, st *store.Store) *IDSIngest {
	return &IDSIngest{tailer: t, sigma: sigma, store: st}
}

// Tick polls the tailer once and submits the resulting alerts. A poll error
// can arrive together with parsed records (the tailer has already advanced
// past them, and a restart replay is suppressed by its dedup window), so the
// records are always submitted before the error propagates.
func (i *IDSIngest) Tick(ctx context.Context) error {
	_ = ctx

	records, pollErr := i.tailer.Poll()
	if len(records) == 0 {
		return pollErr
	}

	var candidates []*models.Alert
	for _, rec := range records {
		candidates = append(candidates, tailer.AlertFromRecord(rec))
		for _, m := range i.sigma.Apply(rec.Raw) {
			candidates = append(candidates, sigmaAlert(rec, m))
		}
	}

	accepted, err := i.store.SubmitBatch(candidates)
	if err != nil {
		return err
	}
	if accepted > 0 {
		logger.Infof("IDS accepted %d alerts from %d records", accepted, len(records))
	}
	return pollErr
}

// sigmaAlert converts one Sigma match over an eve record into an alert.
func sigmaAlert(rec *models.IDSAlertRecord, m rules.SigmaMatch) *models.Alert {
	desc := fmt.Sprintf("%s matched traffic %s -> %s", m.Title, rec.SrcIP, rec.DestIP)
	return &models.Alert{
		ID:        uuid.NewString(),
		Source:    sigmaSource,
		Type:      m.Title,
		Severity:  m.Severity,
		Timestamp: rec.Timestamp,
		EntityID:  rec.SrcIP,
		Labels: map[string]string{
			"rule_id": m.RuleID,
			"dest_ip": rec.DestIP,
		},
		Description: desc,
		Fingerprint: fingerprint.New(sigmaSource, m.Title, desc, rec.Timestamp),
	}
}
