package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Novawatch NovawatchConfig `yaml:"novawatch"`
}

// NovawatchConfig is the project configuration.
type NovawatchConfig struct {
	DataDir      string             `yaml:"data_dir"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Network      NetworkConfig      `yaml:"network"`
	GPS          GPSConfig          `yaml:"gps"`
	Command      CommandConfig      `yaml:"command"`
	Retention    RetentionConfig    `yaml:"retention"`
	Simulator    SimulatorConfig    `yaml:"simulator"`
	SpaceWeather SpaceWeatherConfig `yaml:"spaceweather"`
	IDS          IDSConfig          `yaml:"ids"`
	Rules        RulesConfig        `yaml:"rules"`
	Forward      ForwardConfig      `yaml:"forward"`
	Isolation    IsolationConfig    `yaml:"isolation"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
	Loop         LoopConfig         `yaml:"loop"`
}

// TelemetryConfig holds satellite telemetry thresholds.
type TelemetryConfig struct {
	HighTempC         float64 `yaml:"high_temp_c"`
	LowBatteryPercent float64 `yaml:"low_battery_percent"`
	HighCPUPercent    float64 `yaml:"high_cpu_percent"`
}

// NetworkConfig holds network traffic thresholds.
type NetworkConfig struct {
	DDoSPacketsMin        int `yaml:"ddos_packets_min"`
	LargePacketKBMin      int `yaml:"large_packet_kb_min"`
	LargePacketPacketsMax int `yaml:"large_packet_packets_max"`
}

// GPSConfig holds GPS signal thresholds.
type GPSConfig struct {
	SpoofingDegThreshold float64 `yaml:"spoofing_deg_threshold"`
	SpeedMSThreshold     float64 `yaml:"speed_m_s_threshold"`
	DegradedAccuracyM    float64 `yaml:"degraded_accuracy_m"`
	WeakSignalDB         int     `yaml:"weak_signal_db"`
}

// CommandConfig holds the command-log policy.
type CommandConfig struct {
	AllowedIPs       []string `yaml:"allowed_ips"`
	CriticalCommands []string `yaml:"critical_commands"`
}

// RetentionConfig controls buffer caps and dedup depth.
type RetentionConfig struct {
	MaxFeedItems int `yaml:"max_feed_items"`
	MaxAlerts    int `yaml:"max_alerts"`
	DedupeDepth  int `yaml:"dedupe_depth"`
}

// SimulatorConfig controls the telemetry simulator loop.
type SimulatorConfig struct {
	Interval           time.Duration `yaml:"interval"`
	AnomalyProbability float64       `yaml:"anomaly_probability"`
	SatelliteID        string        `yaml:"satellite_id"`
	ReceiverID         string        `yaml:"receiver_id"`
	BaseLat            float64       `yaml:"base_lat"`
	BaseLon            float64       `yaml:"base_lon"`
	FeedPath           string        `yaml:"feed_path"`
	AlertsPath         string        `yaml:"alerts_path"`
}

// SpaceWeatherConfig controls the space-weather poller loop.
type SpaceWeatherConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	Endpoints     []string      `yaml:"endpoints"`
	EventsPerPull int           `yaml:"events_per_pull_threshold"`
	LookbackDays  int           `yaml:"lookback_days"`
	FeedPath      string        `yaml:"feed_path"`
	AlertsPath    string        `yaml:"alerts_path"`
	FallbackPath  string        `yaml:"fallback_path"`
}

// IDSConfig controls the IDS log tailer loop.
type IDSConfig struct {
	Interval    time.Duration `yaml:"interval"`
	EvePath     string        `yaml:"eve_path"`
	StatePath   string        `yaml:"state_path"`
	AlertsPath  string        `yaml:"alerts_path"`
	BatchLimit  int           `yaml:"batch_limit"`
	DedupWindow time.Duration `yaml:"dedup_window"`
	DedupSize   int           `yaml:"dedup_size"`
	MaxAlerts   int           `yaml:"max_alerts"`
}

// RulesConfig controls the optional Sigma stage over eve records.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ForwardConfig controls optional forwarding of accepted alerts.
type ForwardConfig struct {
	HTTP  HTTPForwardConfig  `yaml:"http"`
	Redis RedisForwardConfig `yaml:"redis"`
}

// HTTPForwardConfig config for webhook forwarding.
type HTTPForwardConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// RedisForwardConfig config for Redis list forwarding.
type RedisForwardConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// IsolationConfig controls the host isolation controller.
type IsolationConfig struct {
	StatePath string `yaml:"state_path"`
	Mode      string `yaml:"mode"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoopConfig controls shared ingest loop behavior.
type LoopConfig struct {
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
