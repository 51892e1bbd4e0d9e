package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"novawatch/internal/fsjson"
	"novawatch/internal/logger"
	"novawatch/internal/rules"
	"novawatch/internal/store"
	"novawatch/pkg/models"
)

// simSource is the origin tag stamped on simulator alerts.
const simSource = "SIM"

const defaultMaxFeedItems = 500

var (
	groundStationIPs = []string{"192.168.1.10", "192.168.1.11", "192.168.1.12"}
	routineCommands  = []string{"ORBIT_ADJUST", "DOWNLOAD_DATA", "ACTIVATE_SENSOR", "STATUS_CHECK"}
	operatorIDs      = []string{"operator_alpha", "operator_beta", "system_auto"}
)

// SimulatorConfig controls one simulator instance.
type SimulatorConfig struct {
	AnomalyProbability float64
	SatelliteID        string
	ReceiverID         string
	BaseLat            float64
	BaseLon            float64
	FeedPath           string
	MaxFeedItems       int
}

// Simulator generates synthetic mission telemetry, runs detection over each
// generated record and submits the findings. It keeps the rolling feed buffer
// on disk so a dashboard can read it independently.
type Simulator struct {
	cfg      SimulatorConfig
	detector *rules.Detector
	store    *store.Store
	rng      *rand.Rand
	now      func() time.Time

	feed    []models.FeedRecord
	prevGPS *models.GPSRecord
}

// NewSimulator creates a simulator, recovering the persisted feed buffer and
// the last GPS fix so position-jump detection survives restarts.
func NewSimulator(cfg SimulatorConfig, detector *rules.Detector, st *store.Store, rng *rand.Rand, now func() time.Time) (*Simulator, error) {
	if cfg.FeedPath == "" {
		return nil, fmt.Errorf("feed path is required")
	}
	if cfg.MaxFeedItems <= 0 {
		cfg.MaxFeedItems = defaultMaxFeedItems
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	s := &Simulator{
		cfg:      cfg,
		detector: detector,
		store:    st,
		rng:      rng,
		now:      now,
	}

	data, err := os.ReadFile(cfg.FeedPath)
	switch {
	case err == nil:
		feed, derr := models.DecodeFeed(data)
		if derr != nil {
			logger.Warnf("Feed buffer %s unreadable, starting empty: %v", cfg.FeedPath, derr)
		} else {
			s.feed = feed
			s.prevGPS = models.LastGPS(feed)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read feed buffer %s: %w", cfg.FeedPath, err)
	}

	return s, nil
}

// Tick generates one record per feed kind, detects anomalies and persists
// both the feed buffer and any accepted alerts.
func (s *Simulator) Tick(ctx context.Context) error {
	_ = ctx

	ts := s.now()
	anomalous := s.rng.Float64() < s.cfg.AnomalyProbability

	records := []models.FeedRecord{
		s.genTelemetry(ts, anomalous),
		s.genCommand(ts, anomalous),
		s.genNetwork(ts, anomalous),
		s.genGPS(ts, anomalous),
	}

	var candidates []*models.Alert
	for _, rec := range records {
		var prev *models.GPSRecord
		if rec.Kind() == models.FeedGPSSignal {
			prev = s.prevGPS
		}
		for _, f := range s.detector.Detect(rec, prev) {
			candidates = append(candidates, buildAlert(simSource, f, ts))
		}
		if g, ok := rec.(*models.GPSRecord); ok {
			s.prevGPS = g
		}
	}

	s.feed = append(s.feed, records...)
	if over := len(s.feed) - s.cfg.MaxFeedItems; over > 0 {
		s.feed = s.feed[over:]
	}
	if err := fsjson.Save(s.cfg.FeedPath, s.feed); err != nil {
		return fmt.Errorf("persist feed buffer: %w", err)
	}

	accepted, err := s.store.SubmitBatch(candidates)
	if err != nil {
		return err
	}
	if accepted > 0 {
		logger.Infof("Simulator accepted %d alerts", accepted)
	}
	return nil
}

func (s *Simulator) genTelemetry(ts time.Time, anomalous bool) *models.TelemetryRecord {
	rec := &models.TelemetryRecord{
		FeedType:       models.FeedTelemetry,
		Timestamp:      ts,
		SatelliteID:    s.cfg.SatelliteID,
		BatteryLevel:   s.uniform(70, 99),
		TemperatureC:   s.uniform(20, 35),
		CPULoadPercent: s.uniform(20, 50),
	}
	if anomalous {
		switch s.rng.Intn(3) {
		case 0:
			rec.TemperatureC = s.uniform(80, 120)
		case 1:
			rec.BatteryLevel = s.uniform(5, 20)
		default:
			rec.CPULoadPercent = s.uniform(80, 100)
		}
	}
	return rec
}

func (s *Simulator) genCommand(ts time.Time, anomalous bool) *models.CommandRecord {
	rec := &models.CommandRecord{
		FeedType:    models.FeedCommandLog,
		Timestamp:   ts,
		SourceIP:    groundStationIPs[s.rng.Intn(len(groundStationIPs))],
		UserID:      operatorIDs[s.rng.Intn(len(operatorIDs))],
		CommandType: routineCommands[s.rng.Intn(len(routineCommands))],
		Status:      "SUCCESS",
	}
	if anomalous {
		switch s.rng.Intn(3) {
		case 0:
			rec.SourceIP = fmt.Sprintf("203.0.113.%d", s.rng.Intn(254)+1)
			rec.UserID = "unknown"
			rec.Status = "FAILED_AUTH"
		case 1:
			rec.CommandType = "DEACTIVATE_TRANSPONDER"
			rec.UserID = "unknown_hacker"
		default:
			rec.CommandType = "LOGIN_ATTEMPT"
			rec.Status = "FAILED"
		}
	}
	return rec
}

func (s *Simulator) genNetwork(ts time.Time, anomalous bool) *models.NetworkRecord {
	rec := &models.NetworkRecord{
		FeedType:     models.FeedNetworkTraffic,
		Timestamp:    ts,
		SourceIP:     fmt.Sprintf("192.168.1.%d", s.rng.Intn(11)+10),
		DestIP:       "10.0.0.1",
		PacketCount:  s.intRange(50, 200),
		DataVolumeKB: s.intRange(100, 500),
	}
	if anomalous {
		if s.rng.Intn(2) == 0 {
			rec.SourceIP = fmt.Sprintf("172.16.0.%d", s.rng.Intn(254)+1)
			rec.PacketCount = s.intRange(2000, 5000)
			rec.DataVolumeKB = s.intRange(5000, 10000)
		} else {
			rec.PacketCount = s.intRange(10, 20)
			rec.DataVolumeKB = s.intRange(1000, 3000)
		}
	}
	return rec
}

func (s *Simulator) genGPS(ts time.Time, anomalous bool) *models.GPSRecord {
	rec := &models.GPSRecord{
		FeedType:         models.FeedGPSSignal,
		Timestamp:        ts,
		ReceiverID:       s.cfg.ReceiverID,
		Latitude:         s.cfg.BaseLat + s.uniform(-0.00005, 0.00005),
		Longitude:        s.cfg.BaseLon + s.uniform(-0.00005, 0.00005),
		AccuracyM:        s.uniform(1.5, 5.0),
		SignalStrengthDB: s.intRange(-125, -115),
	}
	if anomalous {
		if s.rng.Intn(2) == 0 {
			// Spoofed fix: a jump far outside normal jitter, with worse accuracy.
			rec.Latitude = s.cfg.BaseLat + s.uniform(0.01, 0.05)
			rec.Longitude = s.cfg.BaseLon + s.uniform(0.01, 0.05)
			rec.AccuracyM = s.uniform(10, 50)
		} else {
			// Jammed signal: accuracy collapses and signal drops.
			rec.AccuracyM = s.uniform(50, 200)
			rec.SignalStrengthDB = s.intRange(-160, -140)
		}
	}
	return rec
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulator) intRange(lo, hi int) int {
	return lo + s.rng.Intn(hi-lo+1)
}
