package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"novawatch/config"
	"novawatch/internal/ingest"
	"novawatch/internal/isolation"
	"novawatch/internal/logger"
	"novawatch/internal/metrics"
	"novawatch/internal/output/alerthttp"
	"novawatch/internal/output/alertredis"
	"novawatch/internal/rules"
	"novawatch/internal/store"
	"novawatch/internal/tailer"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("novawatch.yml"); err == nil {
		return "novawatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "novawatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "novawatch.yml"
}

func applyDefaults(cfg *config.Config) {
	nw := &cfg.Novawatch

	if nw.DataDir == "" {
		nw.DataDir = "data"
	}

	// Thresholds sit between the simulator's nominal and anomalous ranges.
	if nw.Telemetry.HighTempC == 0 {
		nw.Telemetry.HighTempC = 50
	}
	if nw.Telemetry.LowBatteryPercent == 0 {
		nw.Telemetry.LowBatteryPercent = 25
	}
	if nw.Telemetry.HighCPUPercent == 0 {
		nw.Telemetry.HighCPUPercent = 75
	}
	if nw.Network.DDoSPacketsMin == 0 {
		nw.Network.DDoSPacketsMin = 1000
	}
	if nw.Network.LargePacketKBMin == 0 {
		nw.Network.LargePacketKBMin = 800
	}
	if nw.Network.LargePacketPacketsMax == 0 {
		nw.Network.LargePacketPacketsMax = 30
	}
	if nw.GPS.SpoofingDegThreshold == 0 {
		nw.GPS.SpoofingDegThreshold = 0.005
	}
	if nw.GPS.SpeedMSThreshold == 0 {
		nw.GPS.SpeedMSThreshold = 500
	}
	if nw.GPS.DegradedAccuracyM == 0 {
		nw.GPS.DegradedAccuracyM = 10
	}
	if nw.GPS.WeakSignalDB == 0 {
		nw.GPS.WeakSignalDB = -130
	}
	if len(nw.Command.AllowedIPs) == 0 {
		nw.Command.AllowedIPs = []string{"192.168.1.10", "192.168.1.11", "192.168.1.12"}
	}
	if len(nw.Command.CriticalCommands) == 0 {
		nw.Command.CriticalCommands = []string{"DEACTIVATE_TRANSPONDER", "FORMAT_STORAGE", "DISABLE_ENCRYPTION"}
	}

	if nw.Retention.MaxFeedItems <= 0 {
		nw.Retention.MaxFeedItems = 500
	}
	if nw.Retention.MaxAlerts <= 0 {
		nw.Retention.MaxAlerts = 500
	}
	if nw.Retention.DedupeDepth <= 0 {
		nw.Retention.DedupeDepth = 100
	}

	if nw.Simulator.Interval <= 0 {
		nw.Simulator.Interval = 1 * time.Second
	}
	if nw.Simulator.AnomalyProbability <= 0 {
		nw.Simulator.AnomalyProbability = 0.18
	}
	if nw.Simulator.SatelliteID == "" {
		nw.Simulator.SatelliteID = "NOVA-SAT-1"
	}
	if nw.Simulator.ReceiverID == "" {
		nw.Simulator.ReceiverID = "GS-BEIRUT-1"
	}
	if nw.Simulator.BaseLat == 0 {
		nw.Simulator.BaseLat = 33.8953
	}
	if nw.Simulator.BaseLon == 0 {
		nw.Simulator.BaseLon = 35.4744
	}
	if nw.Simulator.FeedPath == "" {
		nw.Simulator.FeedPath = filepath.Join(nw.DataDir, "live_feed_data.json")
	}
	if nw.Simulator.AlertsPath == "" {
		nw.Simulator.AlertsPath = filepath.Join(nw.DataDir, "live_alerts.json")
	}

	if nw.SpaceWeather.Interval <= 0 {
		nw.SpaceWeather.Interval = 60 * time.Second
	}
	if nw.SpaceWeather.Timeout <= 0 {
		nw.SpaceWeather.Timeout = 10 * time.Second
	}
	if nw.SpaceWeather.EventsPerPull <= 0 {
		nw.SpaceWeather.EventsPerPull = 5
	}
	if nw.SpaceWeather.LookbackDays <= 0 {
		nw.SpaceWeather.LookbackDays = 7
	}
	if nw.SpaceWeather.FeedPath == "" {
		nw.SpaceWeather.FeedPath = filepath.Join(nw.DataDir, "spaceweather_feed.json")
	}
	if nw.SpaceWeather.AlertsPath == "" {
		nw.SpaceWeather.AlertsPath = filepath.Join(nw.DataDir, "spaceweather_alerts.json")
	}
	if nw.SpaceWeather.FallbackPath == "" {
		nw.SpaceWeather.FallbackPath = filepath.Join(nw.DataDir, "spaceweather_sample.json")
	}

	if nw.IDS.Interval <= 0 {
		nw.IDS.Interval = 1 * time.Second
	}
	if nw.IDS.EvePath == "" {
		nw.IDS.EvePath = "/var/log/suricata/eve.json"
	}
	if nw.IDS.StatePath == "" {
		nw.IDS.StatePath = filepath.Join(nw.DataDir, "ids_state.json")
	}
	if nw.IDS.AlertsPath == "" {
		nw.IDS.AlertsPath = filepath.Join(nw.DataDir, "ids_alerts.json")
	}
	if nw.IDS.BatchLimit <= 0 {
		nw.IDS.BatchLimit = 50
	}
	if nw.IDS.DedupWindow <= 0 {
		nw.IDS.DedupWindow = 5 * time.Minute
	}
	if nw.IDS.DedupSize <= 0 {
		nw.IDS.DedupSize = 4096
	}
	if nw.IDS.MaxAlerts <= 0 {
		nw.IDS.MaxAlerts = nw.Retention.MaxAlerts
	}

	if nw.Isolation.StatePath == "" {
		nw.Isolation.StatePath = filepath.Join(nw.DataDir, "isolation_state.json")
	}
	if nw.Isolation.Mode == "" {
		nw.Isolation.Mode = isolation.ModeSim
	}

	if nw.Metrics.Addr == "" {
		nw.Metrics.Addr = ":9290"
	}

	if nw.Logging.Level == "" {
		nw.Logging.Level = "info"
	}

	if nw.Loop.MaxConsecutiveErrors <= 0 {
		nw.Loop.MaxConsecutiveErrors = 10
	}
}

func loadConfigOrDie(configArg string) *config.Config {
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = &config.Config{}
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Novawatch.Logging.Enabled, cfg.Novawatch.Logging.Level, cfg.Novawatch.Logging.File, cfg.Novawatch.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Novawatch starting")
	logger.Infof("Config loaded from: %s", configPath)
	return cfg
}

func thresholdsFromConfig(nw *config.NovawatchConfig) rules.Thresholds {
	return rules.Thresholds{
		HighTempC:             nw.Telemetry.HighTempC,
		LowBatteryPercent:     nw.Telemetry.LowBatteryPercent,
		HighCPUPercent:        nw.Telemetry.HighCPUPercent,
		DDoSPacketsMin:        nw.Network.DDoSPacketsMin,
		LargePacketKBMin:      nw.Network.LargePacketKBMin,
		LargePacketPacketsMax: nw.Network.LargePacketPacketsMax,
		GPSSpoofDegrees:       nw.GPS.SpoofingDegThreshold,
		GPSSpeedMetersPerSec:  nw.GPS.SpeedMSThreshold,
		GPSDegradedAccuracyM:  nw.GPS.DegradedAccuracyM,
		GPSWeakSignalDB:       nw.GPS.WeakSignalDB,
		AllowedCommandIPs:     nw.Command.AllowedIPs,
		CriticalCommands:      nw.Command.CriticalCommands,
	}
}

// buildForwarders creates the configured side channels for accepted alerts.
func buildForwarders(nw *config.NovawatchConfig) ([]store.Forwarder, func()) {
	var forwarders []store.Forwarder
	var closers []func()

	if nw.Forward.HTTP.URL != "" {
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     nw.Forward.HTTP.URL,
			Timeout: nw.Forward.HTTP.Timeout,
			Headers: nw.Forward.HTTP.Headers,
		})
		if err != nil {
			log.Fatalf("Failed to create alert HTTP writer: %v", err)
		}
		forwarders = append(forwarders, w)
		closers = append(closers, func() { w.Close() })
		logger.Infof("Forwarding alerts to http (%s)", nw.Forward.HTTP.URL)
	}

	if nw.Forward.Redis.Key != "" {
		w, err := alertredis.NewWriter(alertredis.Config{
			Addr:     nw.Forward.Redis.Addr,
			Password: nw.Forward.Redis.Password,
			DB:       nw.Forward.Redis.DB,
			Key:      nw.Forward.Redis.Key,
		})
		if err != nil {
			log.Fatalf("Failed to create alert Redis writer: %v", err)
		}
		forwarders = append(forwarders, w)
		closers = append(closers, func() { w.Close() })
		logger.Infof("Forwarding alerts to redis list %q (%s)", nw.Forward.Redis.Key, nw.Forward.Redis.Addr)
	}

	return forwarders, func() {
		for _, c := range closers {
			c()
		}
	}
}

type loopSpec struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
}

func simulatorLoop(nw *config.NovawatchConfig, m *metrics.Metrics, forwarders []store.Forwarder) (loopSpec, error) {
	st, err := store.Open(store.Config{
		Path:        nw.Simulator.AlertsPath,
		MaxAlerts:   nw.Retention.MaxAlerts,
		DedupeDepth: nw.Retention.DedupeDepth,
	}, m, forwarders...)
	if err != nil {
		return loopSpec{}, fmt.Errorf("open simulator alert store: %w", err)
	}

	sim, err := ingest.NewSimulator(ingest.SimulatorConfig{
		AnomalyProbability: nw.Simulator.AnomalyProbability,
		SatelliteID:        nw.Simulator.SatelliteID,
		ReceiverID:         nw.Simulator.ReceiverID,
		BaseLat:            nw.Simulator.BaseLat,
		BaseLon:            nw.Simulator.BaseLon,
		FeedPath:           nw.Simulator.FeedPath,
		MaxFeedItems:       nw.Retention.MaxFeedItems,
	}, rules.NewDetector(thresholdsFromConfig(nw)), st, rand.New(rand.NewSource(time.Now().UnixNano())), nil)
	if err != nil {
		return loopSpec{}, fmt.Errorf("create simulator: %w", err)
	}

	return loopSpec{name: "simulator", interval: nw.Simulator.Interval, fn: sim.Tick}, nil
}

func spaceWeatherLoop(nw *config.NovawatchConfig, m *metrics.Metrics, forwarders []store.Forwarder) (loopSpec, error) {
	st, err := store.Open(store.Config{
		Path:        nw.SpaceWeather.AlertsPath,
		MaxAlerts:   nw.Retention.MaxAlerts,
		DedupeDepth: nw.Retention.DedupeDepth,
	}, m, forwarders...)
	if err != nil {
		return loopSpec{}, fmt.Errorf("open space-weather alert store: %w", err)
	}

	sw, err := ingest.NewSpaceWeather(ingest.SpaceWeatherConfig{
		BaseURL:       nw.SpaceWeather.BaseURL,
		APIKey:        nw.SpaceWeather.APIKey,
		Timeout:       nw.SpaceWeather.Timeout,
		Endpoints:     nw.SpaceWeather.Endpoints,
		EventsPerPull: nw.SpaceWeather.EventsPerPull,
		LookbackDays:  nw.SpaceWeather.LookbackDays,
		FeedPath:      nw.SpaceWeather.FeedPath,
		FallbackPath:  nw.SpaceWeather.FallbackPath,
		MaxFeedItems:  nw.Retention.MaxFeedItems,
	}, st, m, nil)
	if err != nil {
		return loopSpec{}, fmt.Errorf("create space-weather poller: %w", err)
	}

	return loopSpec{name: "spaceweather", interval: nw.SpaceWeather.Interval, fn: sw.Tick}, nil
}

func idsLoop(nw *config.NovawatchConfig, m *metrics.Metrics, forwarders []store.Forwarder) (loopSpec, error) {
	st, err := store.Open(store.Config{
		Path:        nw.IDS.AlertsPath,
		MaxAlerts:   nw.IDS.MaxAlerts,
		DedupeDepth: nw.Retention.DedupeDepth,
	}, m, forwarders...)
	if err != nil {
		return loopSpec{}, fmt.Errorf("open IDS alert store: %w", err)
	}

	t, err := tailer.New(tailer.Config{
		EvePath:     nw.IDS.EvePath,
		StatePath:   nw.IDS.StatePath,
		BatchLimit:  nw.IDS.BatchLimit,
		DedupWindow: nw.IDS.DedupWindow,
		DedupSize:   nw.IDS.DedupSize,
	}, m)
	if err != nil {
		return loopSpec{}, fmt.Errorf("create eve tailer: %w", err)
	}

	var sigmaEngine *rules.SigmaEngine
	if nw.Rules.Enabled && nw.Rules.Path != "" {
		engine, stats, err := rules.NewSigmaEngine(nw.Rules.Path)
		if err != nil {
			return loopSpec{}, fmt.Errorf("load sigma rules: %w", err)
		}
		logger.Infof("Sigma rules loaded: %d of %d files (complex=%d datasource=%d invalid=%d)",
			stats.Loaded, stats.TotalFiles, stats.SkippedComplex, stats.SkippedDatasource, stats.SkippedInvalid)
		sigmaEngine = engine
	}

	ids := ingest.NewIDSIngest(t, sigmaEngine, st)
	return loopSpec{name: "ids", interval: nw.IDS.Interval, fn: ids.Tick}, nil
}

func runLoops(cfg *config.Config, names []string) {
	nw := &cfg.Novawatch

	var m *metrics.Metrics
	if nw.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := metrics.Server(nw.Metrics.Addr, reg)
		go func() {
			logger.Infof("Metrics listening on %s", nw.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil {
				logger.Errorf("Metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
	}

	forwarders, closeForwarders := buildForwarders(nw)
	defer closeForwarders()

	builders := map[string]func(*config.NovawatchConfig, *metrics.Metrics, []store.Forwarder) (loopSpec, error){
		"sim":          simulatorLoop,
		"spaceweather": spaceWeatherLoop,
		"ids":          idsLoop,
	}

	var specs []loopSpec
	for _, name := range names {
		build, ok := builders[name]
		if !ok {
			log.Fatalf("Unknown loop: %s", name)
		}
		spec, err := build(nw, m, forwarders)
		if err != nil {
			log.Fatalf("Failed to start %s loop: %v", name, err)
		}
		specs = append(specs, spec)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Add(1)
		go func(spec loopSpec) {
			defer wg.Done()
			err := ingest.Run(ctx, spec.name, spec.interval, nw.Loop.MaxConsecutiveErrors, spec.fn)
			if err != nil && err != context.Canceled {
				logger.Errorf("Loop %s stopped: %v", spec.name, err)
				cancel()
			}
		}(spec)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Infof("Shutting down")
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	logger.Infof("Novawatch stopped")
}

func runIsolation(cfg *config.Config, verb string, args []string) {
	if len(args) < 1 {
		log.Fatalf("Usage: novawatch %s <ip> [reason]", verb)
	}
	ip := args[0]
	reason := strings.Join(args[1:], " ")

	ctrl, err := isolation.NewController(cfg.Novawatch.Isolation.StatePath, cfg.Novawatch.Isolation.Mode)
	if err != nil {
		log.Fatalf("Failed to create isolation controller: %v", err)
	}

	var msg string
	if verb == "isolate" {
		msg, err = ctrl.Isolate(ip, reason)
	} else {
		msg, err = ctrl.Release(ip)
	}
	if err != nil {
		log.Fatalf("Isolation %s failed: %v", verb, err)
	}
	fmt.Println(msg)
}

func main() {
	verb := "all"
	args := os.Args[1:]
	if len(args) > 0 {
		verb = args[0]
		args = args[1:]
	}

	switch verb {
	case "sim":
		cfg := loadConfigOrDie(configArgFrom(args))
		runLoops(cfg, []string{"sim"})
	case "spaceweather":
		cfg := loadConfigOrDie(configArgFrom(args))
		runLoops(cfg, []string{"spaceweather"})
	case "ids":
		cfg := loadConfigOrDie(configArgFrom(args))
		runLoops(cfg, []string{"ids"})
	case "all":
		cfg := loadConfigOrDie(configArgFrom(args))
		runLoops(cfg, []string{"sim", "spaceweather", "ids"})
	case "isolate", "release":
		cfg := loadConfigOrDie("")
		runIsolation(cfg, verb, args)
	default:
		// Backward-compatible mode: first arg is config path.
		cfg := loadConfigOrDie(verb)
		runLoops(cfg, []string{"sim", "spaceweather", "ids"})
	}
}

func configArgFrom(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
