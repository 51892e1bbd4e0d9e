// Package store maintains the canonical deduplicated alert list for one
// source lineage and persists it atomically.
package store

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"novawatch/internal/fingerprint"
	"novawatch/internal/fsjson"
	"novawatch/internal/logger"
	"novawatch/internal/metrics"
	"novawatch/pkg/models"
)

const (
	defaultMaxAlerts   = 500
	defaultDedupeDepth = 100
)

// Forwarder receives accepted alerts for delivery to an optional side channel
// (webhook, Redis list). Forward failures never block persistence.
type Forwarder interface {
	ForwardAlerts(alerts []*models.Alert) error
}

// Config controls one store instance.
type Config struct {
	Path        string
	MaxAlerts   int
	DedupeDepth int
}

// Stats counts store decisions since open.
type Stats struct {
	Accepted   int64
	Duplicates int64
	Evicted    int64
}

// Store is the dedup and retention store. Retention eviction is plain FIFO,
// oldest first, irrespective of severity: a flood of newer LOW alerts can
// evict a CRITICAL one. That recency trade-off is part of the file contract
// consumed by the dashboard.
type Store struct {
	mu         sync.Mutex
	cfg        Config
	alerts     []*models.Alert
	recent     *lru.Cache[string, struct{}]
	forwarders []Forwarder
	metrics    *metrics.Metrics
	stats      Stats
}

// Open loads the persisted alert array (missing or corrupt files start empty)
// and seeds the recent-fingerprint cache from its tail so deduplication
// survives restarts.
func Open(cfg Config, m *metrics.Metrics, forwarders ...Forwarder) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = defaultMaxAlerts
	}
	if cfg.DedupeDepth <= 0 {
		cfg.DedupeDepth = defaultDedupeDepth
	}

	recent, err := lru.New[string, struct{}](cfg.DedupeDepth)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	s := &Store{
		cfg:        cfg,
		recent:     recent,
		forwarders: forwarders,
		metrics:    m,
	}

	var loaded []*models.Alert
	if err := fsjson.Load(cfg.Path, &loaded); err != nil {
		if !fsjson.IsNotExist(err) {
			logger.Warnf("Alert store %s unreadable, starting empty: %v", cfg.Path, err)
		}
	} else {
		s.alerts = loaded
	}

	start := len(s.alerts) - cfg.DedupeDepth
	if start < 0 {
		start = 0
	}
	for _, a := range s.alerts[start:] {
		if a != nil && a.Fingerprint != "" {
			s.recent.Add(a.Fingerprint, struct{}{})
		}
	}

	return s, nil
}

// Submit offers one candidate alert. It returns true if the alert was
// accepted and persisted, false if it was rejected as a recent duplicate.
func (s *Store) Submit(a *models.Alert) (bool, error) {
	accepted, err := s.SubmitBatch([]*models.Alert{a})
	return accepted > 0, err
}

// SubmitBatch offers a batch of candidate alerts, persisting once. It returns
// the number of accepted alerts.
func (s *Store) SubmitBatch(batch []*models.Alert) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted []*models.Alert
	for _, a := range batch {
		if a == nil || a.Description == "" {
			continue
		}
		if a.Fingerprint == "" {
			a.Fingerprint = fingerprint.New(a.Source, a.Type, a.Description, a.Timestamp)
		}
		if s.recent.Contains(a.Fingerprint) {
			s.stats.Duplicates++
			if s.metrics != nil {
				s.metrics.AlertsDuplicate.Inc()
			}
			continue
		}
		s.recent.Add(a.Fingerprint, struct{}{})
		s.alerts = append(s.alerts, a)
		accepted = append(accepted, a)
		s.stats.Accepted++
		if s.metrics != nil {
			s.metrics.AlertsAccepted.Inc()
		}
	}

	if len(accepted) == 0 {
		return 0, nil
	}

	if over := len(s.alerts) - s.cfg.MaxAlerts; over > 0 {
		s.alerts = s.alerts[over:]
		s.stats.Evicted += int64(over)
		if s.metrics != nil {
			s.metrics.AlertsEvicted.Add(float64(over))
		}
	}

	if err := fsjson.Save(s.cfg.Path, s.alerts); err != nil {
		return len(accepted), fmt.Errorf("persist alerts: %w", err)
	}

	s.forward(accepted)
	return len(accepted), nil
}

func (s *Store) forward(accepted []*models.Alert) {
	for _, fw := range s.forwarders {
		if err := fw.ForwardAlerts(accepted); err != nil {
			logger.Errorf("Failed to forward %d alerts: %v", len(accepted), err)
			if s.metrics != nil {
				s.metrics.ForwardErrors.Inc()
			}
		}
	}
}

// All returns a copy of the retained alerts, oldest first.
func (s *Store) All() []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Len returns the retained alert count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// Stats returns the decision counters since open.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LoadAll reads an alert array file without opening a store. Missing or
// corrupt files yield an empty list, matching what file consumers expect.
func LoadAll(path string) []*models.Alert {
	var alerts []*models.Alert
	if err := fsjson.Load(path, &alerts); err != nil {
		if !fsjson.IsNotExist(err) {
			logger.Warnf("Alert file %s unreadable, treating as empty: %v", path, err)
		}
		return nil
	}
	return alerts
}
