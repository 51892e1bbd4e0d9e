package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"novawatch/internal/fsjson"
	"novawatch/internal/logger"
	"novawatch/internal/metrics"
	"novawatch/internal/rules"
	"novawatch/internal/store"
	"novawatch/pkg/models"
)

// donkiSource is the origin tag stamped on space-weather alerts.
const donkiSource = "DONKI"

const (
	defaultDonkiBaseURL  = "https://api.nasa.gov/DONKI"
	defaultLookbackDays  = 7
	defaultEventsPerPull = 5
)

// defaultDonkiEndpoints are the event classes polled by default: solar
// flares, coronal mass ejections, geomagnetic storms, solar energetic
// particles and radiation belt enhancements.
var defaultDonkiEndpoints = []string{"FLR", "CME", "GST", "SEP", "RBE"}

// donkiAlertTypes maps an endpoint to the alert type raised per event.
var donkiAlertTypes = map[string]string{
	"FLR": "Solar Flare",
	"CME": "CME",
	"GST": "Geomagnetic Storm",
	"SEP": "Radiation Storm",
	"RBE": "Radiation Storm",
}

// donkiTimeKeys are the per-event timestamp fields DONKI uses, in the order
// they are tried.
var donkiTimeKeys = []string{"beginTime", "startTime", "eventTime", "peakTime"}

// SpaceWeatherEvent is one normalized event in the space-weather feed file.
type SpaceWeatherEvent struct {
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Raw       json.RawMessage `json:"raw"`
}

// SpaceWeatherConfig controls one poller instance.
type SpaceWeatherConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	Endpoints     []string
	EventsPerPull int
	LookbackDays  int
	FeedPath      string
	FallbackPath  string
	MaxFeedItems  int
}

// SpaceWeather polls the NASA DONKI endpoints, maintains the rolling event
// feed on disk and raises per-event and rate-anomaly alerts. When every
// endpoint fails the poller falls back to a bundled snapshot file so the
// downstream feed never goes dark.
type SpaceWeather struct {
	cfg     SpaceWeatherConfig
	client  *http.Client
	store   *store.Store
	metrics *metrics.Metrics
	now     func() time.Time

	feed []SpaceWeatherEvent
}

// NewSpaceWeather creates a poller, recovering the persisted feed buffer.
func NewSpaceWeather(cfg SpaceWeatherConfig, st *store.Store, m *metrics.Metrics, now func() time.Time) (*SpaceWeather, error) {
	if cfg.FeedPath == "" {
		return nil, fmt.Errorf("feed path is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDonkiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = defaultDonkiEndpoints
	}
	if cfg.EventsPerPull <= 0 {
		cfg.EventsPerPull = defaultEventsPerPull
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	if cfg.MaxFeedItems <= 0 {
		cfg.MaxFeedItems = defaultMaxFeedItems
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	sw := &SpaceWeather{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		store:   st,
		metrics: m,
		now:     now,
	}

	if err := fsjson.Load(cfg.FeedPath, &sw.feed); err != nil {
		if !fsjson.IsNotExist(err) {
			logger.Warnf("Space-weather feed %s unreadable, starting empty: %v", cfg.FeedPath, err)
		}
		sw.feed = nil
	}

	return sw, nil
}

// Tick pulls every endpoint once, appends the events to the feed and submits
// the resulting alerts. Individual endpoint failures are logged; the tick
// only fails when persistence fails.
func (sw *SpaceWeather) Tick(ctx context.Context) error {
	ts := sw.now()

	var events []SpaceWeatherEvent
	failed := 0
	for _, ep := range sw.cfg.Endpoints {
		eps, err := sw.fetchEndpoint(ctx, ep, ts)
		if err != nil {
			failed++
			logger.Warnf("DONKI %s fetch failed: %v", ep, err)
			if sw.metrics != nil {
				sw.metrics.FetchErrors.Inc()
			}
			continue
		}
		events = append(events, eps...)
	}

	if failed == len(sw.cfg.Endpoints) {
		fallback, err := sw.loadFallback()
		if err != nil {
			return fmt.Errorf("all endpoints failed and no fallback: %w", err)
		}
		logger.Warnf("All DONKI endpoints failed, using fallback snapshot (%d events)", len(fallback))
		events = fallback
	}

	if sw.metrics != nil {
		sw.metrics.RecordsTotal.Add(float64(len(events)))
	}

	candidates := make([]*models.Alert, 0, len(events)+1)
	for _, ev := range events {
		alertType, ok := donkiAlertTypes[ev.EventType]
		if !ok {
			alertType = "Solar Flare"
		}
		f := rules.Finding{
			Type:        alertType,
			Description: fmt.Sprintf("%s event reported by DONKI at %s", ev.EventType, ev.Timestamp.Format(time.RFC3339)),
		}
		candidates = append(candidates, buildAlert(donkiSource, f, ev.Timestamp))
	}

	if len(events) >= sw.cfg.EventsPerPull {
		a := buildAlert(donkiSource, rules.Finding{
			Type:        "Rate Anomaly",
			Description: fmt.Sprintf("%d space-weather events in the last pull", len(events)),
		}, ts)
		a.Labels["rate"] = fmt.Sprintf("%d", len(events))
		candidates = append(candidates, a)
	}

	sw.feed = append(sw.feed, events...)
	if over := len(sw.feed) - sw.cfg.MaxFeedItems; over > 0 {
		sw.feed = sw.feed[over:]
	}
	if err := fsjson.Save(sw.cfg.FeedPath, sw.feed); err != nil {
		return fmt.Errorf("persist space-weather feed: %w", err)
	}

	accepted, err := sw.store.SubmitBatch(candidates)
	if err != nil {
		return err
	}
	if accepted > 0 {
		logger.Infof("Space weather accepted %d alerts from %d events", accepted, len(events))
	}
	return nil
}

func (sw *SpaceWeather) fetchEndpoint(ctx context.Context, endpoint string, now time.Time) ([]SpaceWeatherEvent, error) {
	start := now.AddDate(0, 0, -sw.cfg.LookbackDays).Format("2006-01-02")

	q := url.Values{}
	q.Set("startDate", start)
	if sw.cfg.APIKey != "" {
		q.Set("api_key", sw.cfg.APIKey)
	}
	reqURL := fmt.Sprintf("%s/%s?%s", sw.cfg.BaseURL, endpoint, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := sw.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("get %s: status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", endpoint, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	events := make([]SpaceWeatherEvent, 0, len(items))
	for _, item := range items {
		events = append(events, SpaceWeatherEvent{
			EventType: endpoint,
			Timestamp: eventTime(item, now),
			Raw:       item,
		})
	}
	return events, nil
}

// eventTime extracts the event timestamp from a raw DONKI document, falling
// back to the pull time when none of the known fields parse.
func eventTime(raw json.RawMessage, fallback time.Time) time.Time {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fallback
	}
	for _, key := range donkiTimeKeys {
		s, ok := fields[key].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range []string{"2006-01-02T15:04Z", time.RFC3339} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return fallback
}

func (sw *SpaceWeather) loadFallback() ([]SpaceWeatherEvent, error) {
	if sw.cfg.FallbackPath == "" {
		return nil, fmt.Errorf("no fallback snapshot configured")
	}
	var events []SpaceWeatherEvent
	if err := fsjson.Load(sw.cfg.FallbackPath, &events); err != nil {
		return nil, fmt.Errorf("load fallback snapshot: %w", err)
	}
	return events, nil
}

// Feed returns a copy of the current space-weather feed buffer.
func (sw *SpaceWeather) Feed() []SpaceWeatherEvent {
	out := make([]SpaceWeatherEvent, len(sw.feed))
	copy(out, sw.feed)
	return out
}
