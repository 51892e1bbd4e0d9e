// Package rules holds the per-feed-kind detection heuristics and the optional
// Sigma stage over raw IDS records.
package rules

import (
	"fmt"
	"math"
	"strings"

	"novawatch/pkg/models"
)

// approximate meters per degree of latitude, used to convert the configured
// degree threshold for GPS position jumps.
const metersPerDegree = 111000.0

// user markers set by the command-log source.
const (
	unknownUser = "unknown"
	hostileUser = "unknown_hacker"
)

// Finding is one detection hit: an alert type plus its human description.
type Finding struct {
	Type        string
	Description string
}

// Thresholds are the injected detection limits. All values come from
// configuration; the detector holds no ambient state.
type Thresholds struct {
	HighTempC         float64
	LowBatteryPercent float64
	HighCPUPercent    float64

	DDoSPacketsMin        int
	LargePacketKBMin      int
	LargePacketPacketsMax int

	GPSSpoofDegrees      float64
	GPSSpeedMetersPerSec float64
	GPSDegradedAccuracyM float64
	GPSWeakSignalDB      int

	AllowedCommandIPs []string
	CriticalCommands  []string
}

// Detector evaluates detection rules against single feed records.
type Detector struct {
	cfg      Thresholds
	allowed  map[string]struct{}
	critical map[string]struct{}
}

// NewDetector builds a detector from thresholds.
func NewDetector(cfg Thresholds) *Detector {
	allowed := make(map[string]struct{}, len(cfg.AllowedCommandIPs))
	for _, ip := range cfg.AllowedCommandIPs {
		allowed[ip] = struct{}{}
	}
	critical := make(map[string]struct{}, len(cfg.CriticalCommands))
	for _, cmd := range cfg.CriticalCommands {
		critical[cmd] = struct{}{}
	}
	return &Detector{cfg: cfg, allowed: allowed, critical: critical}
}

// Detect inspects one record, with the previous GPS fix of the same receiver
// for GPS records, and returns zero or more findings. Rules are not mutually
// exclusive: one record may fire several.
func (d *Detector) Detect(rec models.FeedRecord, prevGPS *models.GPSRecord) []Finding {
	switch r := rec.(type) {
	case *models.TelemetryRecord:
		return d.detectTelemetry(r)
	case *models.CommandRecord:
		return d.detectCommand(r)
	case *models.NetworkRecord:
		return d.detectNetwork(r)
	case *models.GPSRecord:
		return d.detectGPS(r, prevGPS)
	}
	return nil
}

func (d *Detector) detectTelemetry(r *models.TelemetryRecord) []Finding {
	var out []Finding
	if r.TemperatureC > d.cfg.HighTempC {
		out = append(out, Finding{
			Type:        "High Temp",
			Description: fmt.Sprintf("%s - High Temperature (%.2f°C)", r.SatelliteID, r.TemperatureC),
		})
	}
	if r.BatteryLevel < d.cfg.LowBatteryPercent {
		out = append(out, Finding{
			Type:        "Low Battery",
			Description: fmt.Sprintf("%s - Critical Low Battery (%.2f%%)", r.SatelliteID, r.BatteryLevel),
		})
	}
	if r.CPULoadPercent > d.cfg.HighCPUPercent {
		out = append(out, Finding{
			Type:        "High CPU",
			Description: fmt.Sprintf("%s - High CPU Load (%.1f%%)", r.SatelliteID, r.CPULoadPercent),
		})
	}
	return out
}

func (d *Detector) detectCommand(r *models.CommandRecord) []Finding {
	var out []Finding
	if _, ok := d.allowed[r.SourceIP]; !ok && r.UserID == unknownUser {
		out = append(out, Finding{
			Type:        "Unauthorized Command",
			Description: fmt.Sprintf("Unauthorized IP (%s) attempting '%s'", r.SourceIP, r.CommandType),
		})
	}
	if _, ok := d.critical[r.CommandType]; ok && r.UserID == hostileUser {
		out = append(out, Finding{
			Type:        "Critical Command",
			Description: fmt.Sprintf("Critical '%s' from unknown user", r.CommandType),
		})
	}
	if strings.Contains(r.Status, "FAILED") && r.CommandType == "LOGIN_ATTEMPT" {
		out = append(out, Finding{
			Type:        "Failed Login",
			Description: fmt.Sprintf("Failed login from %s", r.SourceIP),
		})
	}
	return out
}

func (d *Detector) detectNetwork(r *models.NetworkRecord) []Finding {
	var out []Finding
	if r.PacketCount > d.cfg.DDoSPacketsMin {
		out = append(out, Finding{
			Type:        "DDoS",
			Description: fmt.Sprintf("Traffic Spike (%d pkts) from %s", r.PacketCount, r.SourceIP),
		})
	}
	// The packet-count guard keeps legitimately large transfers that are
	// really floods from double-flagging as Large Packet.
	if r.DataVolumeKB > d.cfg.LargePacketKBMin && r.PacketCount < d.cfg.LargePacketPacketsMax {
		out = append(out, Finding{
			Type:        "Large Packet",
			Description: fmt.Sprintf("Large Packet (%dKB) from %s", r.DataVolumeKB, r.SourceIP),
		})
	}
	return out
}

func (d *Detector) detectGPS(r *models.GPSRecord, prev *models.GPSRecord) []Finding {
	var out []Finding
	if prev != nil {
		distM := haversineMeters(prev.Latitude, prev.Longitude, r.Latitude, r.Longitude)
		if distM > d.cfg.GPSSpoofDegrees*metersPerDegree {
			out = append(out, Finding{
				Type:        "GPS Spoofing",
				Description: fmt.Sprintf("%s - Position jump %d m", r.ReceiverID, int(distM)),
			})
		}
		// Fixes arrive on a ~1s cadence, so the raw distance doubles as a
		// meters-per-second estimate.
		if distM > d.cfg.GPSSpeedMetersPerSec {
			out = append(out, Finding{
				Type:        "GPS Speed Gate",
				Description: fmt.Sprintf("%s - Unrealistic move %d m/s", r.ReceiverID, int(distM)),
			})
		}
	}
	if r.AccuracyM > d.cfg.GPSDegradedAccuracyM {
		out = append(out, Finding{
			Type:        "GPS Accuracy",
			Description: fmt.Sprintf("%s - Degraded accuracy (%.1f m)", r.ReceiverID, r.AccuracyM),
		})
	}
	if r.SignalStrengthDB < d.cfg.GPSWeakSignalDB {
		out = append(out, Finding{
			Type:        "GPS Jamming",
			Description: fmt.Sprintf("%s - Weak signal (%d dB)", r.ReceiverID, r.SignalStrengthDB),
		})
	}
	return out
}

// haversineMeters returns the great-circle distance between two fixes.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
