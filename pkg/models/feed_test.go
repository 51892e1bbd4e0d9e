package models

import (
	"testing"
	"time"
)

func TestDecodeFeedDispatchesOnFeedType(t *testing.T) {
	data := []byte(`[
		{"feed_type":"TELEMETRY","timestamp":"2026-03-01T10:00:00Z","satellite_id":"SAT-1","battery_level":90,"temperature_c":25,"cpu_load_percent":30},
		{"feed_type":"GPS_SIGNAL","timestamp":"2026-03-01T10:00:01Z","receiver_id":"GS-1","latitude":33.9,"longitude":35.5,"accuracy_m":2.5,"signal_strength_db":-120}
	]`)

	feed, err := DecodeFeed(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("expected 2 records, got %d", len(feed))
	}

	tel, ok := feed[0].(*TelemetryRecord)
	if !ok {
		t.Fatalf("expected first record to be telemetry, got %T", feed[0])
	}
	if tel.SatelliteID != "SAT-1" || tel.BatteryLevel != 90 {
		t.Fatalf("unexpected telemetry record: %+v", tel)
	}

	gps, ok := feed[1].(*GPSRecord)
	if !ok {
		t.Fatalf("expected second record to be gps, got %T", feed[1])
	}
	if gps.SignalStrengthDB != -120 {
		t.Fatalf("unexpected gps record: %+v", gps)
	}
}

func TestDecodeFeedRejectsUnknownKind(t *testing.T) {
	data := []byte(`[{"feed_type":"SONAR","timestamp":"2026-03-01T10:00:00Z"}]`)
	if _, err := DecodeFeed(data); err == nil {
		t.Fatalf("expected error for unknown feed_type")
	}
}

func TestLastGPSScansBackwards(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	feed := []FeedRecord{
		&GPSRecord{FeedType: FeedGPSSignal, Timestamp: ts, ReceiverID: "old"},
		&TelemetryRecord{FeedType: FeedTelemetry, Timestamp: ts},
		&GPSRecord{FeedType: FeedGPSSignal, Timestamp: ts, ReceiverID: "new"},
		&CommandRecord{FeedType: FeedCommandLog, Timestamp: ts},
	}

	got := LastGPS(feed)
	if got == nil || got.ReceiverID != "new" {
		t.Fatalf("expected most recent gps fix, got %+v", got)
	}
	if LastGPS(nil) != nil {
		t.Fatalf("expected nil for empty feed")
	}
}
