package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"novawatch/internal/fsjson"
	"novawatch/internal/store"
	"novawatch/pkg/models"
)

func donkiServer(t *testing.T, perEndpoint map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := perEndpoint[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("startDate") == "" {
			t.Errorf("missing startDate query on %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

func newTestSpaceWeather(t *testing.T, dir string, cfg SpaceWeatherConfig) (*SpaceWeather, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(dir, "alerts.json")}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if cfg.FeedPath == "" {
		cfg.FeedPath = filepath.Join(dir, "feed.json")
	}
	sw, err := NewSpaceWeather(cfg, st, nil, nil)
	if err != nil {
		t.Fatalf("new space weather: %v", err)
	}
	return sw, st
}

func TestTickRaisesPerEventAndRateAnomalyAlerts(t *testing.T) {
	srv := donkiServer(t, map[string]string{
		"/FLR": `[{"flrID":"1","beginTime":"2026-03-01T09:30Z"},{"flrID":"2","beginTime":"2026-03-01T10:10Z"}]`,
		"/GST": `[{"gstID":"3","startTime":"2026-03-01T08:00Z"}]`,
	})
	defer srv.Close()

	dir := t.TempDir()
	sw, st := newTestSpaceWeather(t, dir, SpaceWeatherConfig{
		BaseURL:       srv.URL,
		Endpoints:     []string{"FLR", "GST"},
		EventsPerPull: 3,
	})

	if err := sw.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	alerts := st.All()
	types := make(map[string]int)
	for _, a := range alerts {
		if a.Source != "DONKI" {
			t.Fatalf("unexpected alert source: %s", a.Source)
		}
		types[a.Type]++
	}
	if types["Solar Flare"] != 2 {
		t.Fatalf("expected 2 Solar Flare alerts, got %v", types)
	}
	if types["Geomagnetic Storm"] != 1 {
		t.Fatalf("expected 1 Geomagnetic Storm alert, got %v", types)
	}
	if types["Rate Anomaly"] != 1 {
		t.Fatalf("expected a Rate Anomaly alert at the pull threshold, got %v", types)
	}

	if len(sw.Feed()) != 3 {
		t.Fatalf("expected 3 events in feed, got %d", len(sw.Feed()))
	}
}

func TestNoRateAnomalyBelowThreshold(t *testing.T) {
	srv := donkiServer(t, map[string]string{
		"/FLR": `[{"flrID":"1","beginTime":"2026-03-01T09:30Z"}]`,
	})
	defer srv.Close()

	dir := t.TempDir()
	sw, st := newTestSpaceWeather(t, dir, SpaceWeatherConfig{
		BaseURL:       srv.URL,
		Endpoints:     []string{"FLR"},
		EventsPerPull: 5,
	})

	if err := sw.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, a := range st.All() {
		if a.Type == "Rate Anomaly" {
			t.Fatalf("unexpected rate anomaly below threshold")
		}
	}
}

func TestPartialEndpointFailureStillSucceeds(t *testing.T) {
	srv := donkiServer(t, map[string]string{
		"/FLR": `[{"flrID":"1","beginTime":"2026-03-01T09:30Z"}]`,
		// CME intentionally missing: returns 404.
	})
	defer srv.Close()

	dir := t.TempDir()
	sw, st := newTestSpaceWeather(t, dir, SpaceWeatherConfig{
		BaseURL:   srv.URL,
		Endpoints: []string{"FLR", "CME"},
	})

	if err := sw.Tick(context.Background()); err != nil {
		t.Fatalf("tick should tolerate one failed endpoint: %v", err)
	}
	if len(st.All()) == 0 {
		t.Fatalf("expected alerts from the healthy endpoint")
	}
}

func TestAllEndpointsFailedUsesFallbackSnapshot(t *testing.T) {
	srv := donkiServer(t, map[string]string{})
	defer srv.Close()

	dir := t.TempDir()
	fallbackPath := filepath.Join(dir, "sample.json")
	snapshot := []SpaceWeatherEvent{
		{EventType: "CME", Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)},
	}
	if err := fsjson.Save(fallbackPath, snapshot); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	sw, st := newTestSpaceWeather(t, dir, SpaceWeatherConfig{
		BaseURL:      srv.URL,
		Endpoints:    []string{"FLR", "CME"},
		FallbackPath: fallbackPath,
	})

	if err := sw.Tick(context.Background()); err != nil {
		t.Fatalf("tick with fallback: %v", err)
	}

	alerts := st.All()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert from the fallback snapshot, got %d", len(alerts))
	}
	if alerts[0].Type != "CME" || alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("unexpected fallback alert: %+v", alerts[0])
	}
}

func TestAllEndpointsFailedWithoutFallbackIsAnError(t *testing.T) {
	srv := donkiServer(t, map[string]string{})
	defer srv.Close()

	dir := t.TempDir()
	sw, _ := newTestSpaceWeather(t, dir, SpaceWeatherConfig{
		BaseURL:   srv.URL,
		Endpoints: []string{"FLR"},
	})

	if err := sw.Tick(context.Background()); err == nil {
		t.Fatalf("expected error when every endpoint fails and no fallback exists")
	}
}

func TestEventTimeParsesDonkiLayouts(t *testing.T) {
	fallback := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := eventTime([]byte(`{"beginTime":"2026-03-01T09:30Z"}`), fallback)
	if !got.Equal(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed time: %v", got)
	}

	got = eventTime([]byte(`{"noTimeHere":true}`), fallback)
	if !got.Equal(fallback) {
		t.Fatalf("expected fallback time, got %v", got)
	}
}
