// Package ingest drives the independent polling loops that feed the dedup
// store: the telemetry simulator, the space-weather poller and the IDS
// tailer. Each loop owns its output files; loops never share a writer.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"novawatch/internal/fingerprint"
	"novawatch/internal/logger"
	"novawatch/internal/rules"
	"novawatch/pkg/models"
)

const defaultMaxConsecutiveErrors = 10

// Run drives fn at a fixed interval until ctx is done or the consecutive
// failure budget is exhausted. A single failed iteration is logged and the
// loop continues; only sustained failure is fatal, so an external supervisor
// can restart the process.
func Run(ctx context.Context, name string, interval time.Duration, maxConsecutive int, fn func(context.Context) error) error {
	if maxConsecutive <= 0 {
		maxConsecutive = defaultMaxConsecutiveErrors
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutive := 0
	for {
		if err := fn(ctx); err != nil {
			consecutive++
			logger.Errorf("%s: iteration failed (%d/%d): %v", name, consecutive, maxConsecutive, err)
			if consecutive >= maxConsecutive {
				return fmt.Errorf("%s: %d consecutive failures, stopping: %w", name, consecutive, err)
			}
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// buildAlert turns one detection finding into a candidate alert.
func buildAlert(source string, f rules.Finding, ts time.Time) *models.Alert {
	return &models.Alert{
		ID:          uuid.NewString(),
		Source:      source,
		Type:        f.Type,
		Severity:    models.SeverityFromType(f.Type),
		Timestamp:   ts,
		Labels:      map[string]string{},
		Description: f.Description,
		Fingerprint: fingerprint.New(source, f.Type, f.Description, ts),
	}
}
