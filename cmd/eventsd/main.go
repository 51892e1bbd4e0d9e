// eventsd streams newly appended alerts from an alert file to SSE clients so
// a dashboard can subscribe instead of re-reading the file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"novawatch/internal/store"
	"novawatch/pkg/models"
)

func main() {
	alertsPath := flag.String("alerts", "data/live_alerts.json", "Alert file to watch")
	addr := flag.String("addr", ":8765", "Listen address")
	interval := flag.Duration("interval", time.Second, "File poll interval")
	flag.Parse()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Get("/events/alerts", func(w http.ResponseWriter, req *http.Request) {
		streamAlerts(w, req, *alertsPath, *interval)
	})

	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("eventsd listening on %s, watching %s", *addr, *alertsPath)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("eventsd stopped: %v", err)
	}
}

// streamAlerts polls the alert file and pushes every alert appended since the
// client connected. The file is FIFO append-then-trim, so the cursor is the
// ID of the last streamed alert, not the array length: eviction and appends
// can balance out between polls and leave the length unchanged.
func streamAlerts(w http.ResponseWriter, req *http.Request, path string, interval time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	lastID := ""
	if initial := store.LoadAll(path); len(initial) > 0 {
		lastID = initial[len(initial)-1].ID
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
		}

		pending := pendingAlerts(store.LoadAll(path), lastID)
		if len(pending) == 0 {
			continue
		}
		for _, a := range pending {
			if err := writeEvent(w, a); err != nil {
				return
			}
		}
		flusher.Flush()
		lastID = pending[len(pending)-1].ID
	}
}

// pendingAlerts returns the alerts appended after the one carrying lastID.
// When the cursor alert has been evicted, everything still retained is newer
// than it (eviction is strictly oldest-first), so the whole file is pending.
func pendingAlerts(alerts []*models.Alert, lastID string) []*models.Alert {
	if lastID == "" {
		return alerts
	}
	for i := len(alerts) - 1; i >= 0; i-- {
		if alerts[i].ID == lastID {
			return alerts[i+1:]
		}
	}
	return alerts
}

func writeEvent(w http.ResponseWriter, a *models.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}
