// Package tailer incrementally reads a growing Suricata eve.json log,
// tracking a persisted byte offset across restarts and rotations.
package tailer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"novawatch/internal/fsjson"
	"novawatch/internal/logger"
	"novawatch/internal/metrics"
	"novawatch/pkg/models"
)

const (
	defaultBatchLimit  = 50
	defaultDedupWindow = 5 * time.Minute
	defaultDedupSize   = 4096
)

// Stats counts tailer decisions; persisted with the offset.
type Stats struct {
	Processed  int64 `json:"processed"`
	Alerts     int64 `json:"alerts"`
	Duplicates int64 `json:"duplicates"`
	Errors     int64 `json:"errors"`
}

// State is the persisted reader position.
type State struct {
	LastOffset int64     `json:"last_byte_offset"`
	Stats      Stats     `json:"stats"`
	Updated    time.Time `json:"updated"`
}

// Config controls one tailer instance.
type Config struct {
	EvePath     string
	StatePath   string
	BatchLimit  int
	DedupWindow time.Duration
	DedupSize   int
}

// Tailer reads new eve.json lines since the last persisted offset. A size
// decrease means the file was rotated or truncated; the offset resets to 0
// and the file is reprocessed from the start. Replays past the dedup window
// can re-emit alerts; that is accepted best-effort behavior.
type Tailer struct {
	cfg     Config
	state   State
	window  *expirable.LRU[string, struct{}]
	metrics *metrics.Metrics
}

// New creates a tailer, resuming from the persisted state when present.
func New(cfg Config, m *metrics.Metrics) (*Tailer, error) {
	if cfg.EvePath == "" {
		return nil, fmt.Errorf("eve path is required")
	}
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = defaultDedupSize
	}

	t := &Tailer{
		cfg:     cfg,
		window:  expirable.NewLRU[string, struct{}](cfg.DedupSize, nil, cfg.DedupWindow),
		metrics: m,
	}

	if err := fsjson.Load(cfg.StatePath, &t.state); err != nil {
		if !fsjson.IsNotExist(err) {
			logger.Warnf("Tailer state %s unreadable, starting from offset 0: %v", cfg.StatePath, err)
		}
		t.state = State{}
	}

	return t, nil
}

// Poll reads up to the batch limit of new lines and returns the parsed,
// window-deduplicated alert records. Malformed lines are counted and skipped.
// The updated state is persisted after each cycle.
func (t *Tailer) Poll() ([]*models.IDSAlertRecord, error) {
	fi, err := os.Stat(t.cfg.EvePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", t.cfg.EvePath, err)
	}

	size := fi.Size()
	if size < t.state.LastOffset {
		logger.Warnf("Log %s shrank from %d to %d bytes, assuming rotation; rereading from start",
			t.cfg.EvePath, t.state.LastOffset, size)
		t.state.LastOffset = 0
	}
	if size == t.state.LastOffset {
		return nil, nil
	}

	f, err := os.Open(t.cfg.EvePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.cfg.EvePath, err)
	}
	defer f.Close()

	if _, err := f.Seek(t.state.LastOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s to %d: %w", t.cfg.EvePath, t.state.LastOffset, err)
	}

	out, advanced, readErr := t.readBatch(bufio.NewReader(f))

	t.state.LastOffset += advanced
	t.state.Updated = time.Now().UTC()
	if err := fsjson.Save(t.cfg.StatePath, &t.state); err != nil {
		return out, fmt.Errorf("persist tailer state: %w", err)
	}

	return out, readErr
}

// readBatch consumes up to the batch limit of newline-terminated lines and
// returns the parsed records plus the byte count consumed. io.EOF means a
// trailing fragment the writer has not finished; the offset stays before it
// for the next cycle. Any other read error is counted and surfaced.
func (t *Tailer) readBatch(reader *bufio.Reader) ([]*models.IDSAlertRecord, int64, error) {
	var out []*models.IDSAlertRecord
	var advanced int64

	for lines := 0; lines < t.cfg.BatchLimit; lines++ {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			t.state.Stats.Errors++
			return out, advanced, fmt.Errorf("read %s: %w", t.cfg.EvePath, err)
		}

		advanced += int64(len(line))
		t.state.Stats.Processed++
		if t.metrics != nil {
			t.metrics.RecordsTotal.Inc()
		}

		rec, perr := ParseEveLine(line)
		if perr != nil {
			t.state.Stats.Errors++
			if t.metrics != nil {
				t.metrics.ParseErrors.Inc()
			}
			continue
		}
		if rec == nil {
			continue // not an alert event
		}
		if t.isRecentDuplicate(rec) {
			t.state.Stats.Duplicates++
			continue
		}

		t.state.Stats.Alerts++
		out = append(out, rec)
	}

	return out, advanced, nil
}

// isRecentDuplicate suppresses repeated identical IDS rule hits within the
// dedup window, keyed by (src_ip, dest_ip, signature_id). This window is
// distinct from, and in addition to, the store's fingerprint cache.
func (t *Tailer) isRecentDuplicate(rec *models.IDSAlertRecord) bool {
	key := dedupeKey(rec)
	if t.window.Contains(key) {
		return true
	}
	t.window.Add(key, struct{}{})
	return false
}

// Stats returns the counters accumulated so far.
func (t *Tailer) Stats() Stats {
	return t.state.Stats
}

// Offset returns the current byte offset into the log.
func (t *Tailer) Offset() int64 {
	return t.state.LastOffset
}
