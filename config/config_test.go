package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	body := `
novawatch:
  data_dir: /var/lib/novawatch
  telemetry:
    high_temp_c: 55
    low_battery_percent: 20
  gps:
    weak_signal_db: -128
  command:
    allowed_ips:
      - 192.168.1.10
    critical_commands:
      - DEACTIVATE_TRANSPONDER
  simulator:
    interval: 2s
    anomaly_probability: 0.25
  ids:
    eve_path: /var/log/suricata/eve.json
    dedup_window: 5m
  forward:
    redis:
      addr: 127.0.0.1:6379
      key: novawatch_alerts
  logging:
    enabled: true
    level: debug
`
	path := filepath.Join(t.TempDir(), "novawatch.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	nw := cfg.Novawatch
	if nw.DataDir != "/var/lib/novawatch" {
		t.Fatalf("unexpected data dir: %s", nw.DataDir)
	}
	if nw.Telemetry.HighTempC != 55 || nw.Telemetry.LowBatteryPercent != 20 {
		t.Fatalf("unexpected telemetry thresholds: %+v", nw.Telemetry)
	}
	if nw.GPS.WeakSignalDB != -128 {
		t.Fatalf("unexpected gps config: %+v", nw.GPS)
	}
	if len(nw.Command.AllowedIPs) != 1 || nw.Command.AllowedIPs[0] != "192.168.1.10" {
		t.Fatalf("unexpected allowed ips: %+v", nw.Command.AllowedIPs)
	}
	if nw.Simulator.Interval != 2*time.Second {
		t.Fatalf("unexpected simulator interval: %v", nw.Simulator.Interval)
	}
	if nw.IDS.DedupWindow != 5*time.Minute {
		t.Fatalf("unexpected dedup window: %v", nw.IDS.DedupWindow)
	}
	if nw.Forward.Redis.Key != "novawatch_alerts" {
		t.Fatalf("unexpected redis forward config: %+v", nw.Forward.Redis)
	}
	if !nw.Logging.Enabled || nw.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", nw.Logging)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
