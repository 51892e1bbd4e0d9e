package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeedKind discriminates the feed record variants.
type FeedKind string

const (
	FeedTelemetry      FeedKind = "TELEMETRY"
	FeedCommandLog     FeedKind = "COMMAND_LOG"
	FeedNetworkTraffic FeedKind = "NETWORK_TRAFFIC"
	FeedGPSSignal      FeedKind = "GPS_SIGNAL"
)

// FeedRecord is one ephemeral telemetry record. The concrete variants are
// TelemetryRecord, CommandRecord, NetworkRecord and GPSRecord; detection
// dispatches on the concrete type, so a new feed kind is a compile-time
// decision rather than a silently-ignored string.
type FeedRecord interface {
	Kind() FeedKind
	RecordTime() time.Time
}

// TelemetryRecord carries satellite health readings.
type TelemetryRecord struct {
	FeedType       FeedKind  `json:"feed_type"`
	Timestamp      time.Time `json:"timestamp"`
	SatelliteID    string    `json:"satellite_id"`
	BatteryLevel   float64   `json:"battery_level"`
	TemperatureC   float64   `json:"temperature_c"`
	CPULoadPercent float64   `json:"cpu_load_percent"`
}

func (r *TelemetryRecord) Kind() FeedKind        { return FeedTelemetry }
func (r *TelemetryRecord) RecordTime() time.Time { return r.Timestamp }

// CommandRecord carries one ground-station command log entry.
type CommandRecord struct {
	FeedType    FeedKind  `json:"feed_type"`
	Timestamp   time.Time `json:"timestamp"`
	SourceIP    string    `json:"source_ip"`
	UserID      string    `json:"user_id"`
	CommandType string    `json:"command_type"`
	Status      string    `json:"status"`
}

func (r *CommandRecord) Kind() FeedKind        { return FeedCommandLog }
func (r *CommandRecord) RecordTime() time.Time { return r.Timestamp }

// NetworkRecord carries link traffic counters.
type NetworkRecord struct {
	FeedType     FeedKind  `json:"feed_type"`
	Timestamp    time.Time `json:"timestamp"`
	SourceIP     string    `json:"source_ip"`
	DestIP       string    `json:"dest_ip"`
	PacketCount  int       `json:"packet_count"`
	DataVolumeKB int       `json:"data_volume_kb"`
}

func (r *NetworkRecord) Kind() FeedKind        { return FeedNetworkTraffic }
func (r *NetworkRecord) RecordTime() time.Time { return r.Timestamp }

// GPSRecord carries one GPS receiver fix.
type GPSRecord struct {
	FeedType         FeedKind  `json:"feed_type"`
	Timestamp        time.Time `json:"timestamp"`
	ReceiverID       string    `json:"receiver_id"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	AccuracyM        float64   `json:"accuracy_m"`
	SignalStrengthDB int       `json:"signal_strength_db"`
}

func (r *GPSRecord) Kind() FeedKind        { return FeedGPSSignal }
func (r *GPSRecord) RecordTime() time.Time { return r.Timestamp }

// DecodeFeed decodes a persisted feed buffer (a JSON array of feed-type-tagged
// records) back into concrete records.
func DecodeFeed(data []byte) ([]FeedRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode feed array: %w", err)
	}

	out := make([]FeedRecord, 0, len(raw))
	for i, item := range raw {
		var head struct {
			FeedType FeedKind `json:"feed_type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, fmt.Errorf("decode feed item %d: %w", i, err)
		}

		var rec FeedRecord
		switch head.FeedType {
		case FeedTelemetry:
			rec = &TelemetryRecord{}
		case FeedCommandLog:
			rec = &CommandRecord{}
		case FeedNetworkTraffic:
			rec = &NetworkRecord{}
		case FeedGPSSignal:
			rec = &GPSRecord{}
		default:
			return nil, fmt.Errorf("decode feed item %d: unknown feed_type %q", i, head.FeedType)
		}
		if err := json.Unmarshal(item, rec); err != nil {
			return nil, fmt.Errorf("decode feed item %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// LastGPS returns the most recent GPS fix in the feed, or nil.
func LastGPS(feed []FeedRecord) *GPSRecord {
	for i := len(feed) - 1; i >= 0; i-- {
		if g, ok := feed[i].(*GPSRecord); ok {
			return g
		}
	}
	return nil
}
