package main

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lttng_iostate/internal/config"
	"lttng_iostate/internal/iostate"
)

// startServer serves metrics, the live feed and state queries in the
// background.
func startServer(cfg *config.AppConfig, a *analysis) *http.Server {
	srv := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: newMux(cfg, a),
	}

	log.Info().Str("address", cfg.Server.ListenAddress).Msg("Starting HTTP server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()
	return srv
}

func newMux(cfg *config.AppConfig, a *analysis) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.MetricsPath, promhttp.Handler())
	mux.Handle(cfg.Server.FeedPath, a.hub)
	mux.HandleFunc("/api/disks", a.handleDisks)
	mux.HandleFunc("/api/throughput", a.handleThroughput)
	mux.HandleFunc("/api/threads", a.handleThreads)

	if cfg.Server.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		log.Debug().Msg("pprof endpoints enabled")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html>
            <head><title>lttng_iostate</title></head>
            <body>
            <h1>lttng_iostate v` + version + `</h1>
            <p><a href="` + cfg.Server.MetricsPath + `">Metrics</a></p>
            <p><a href="/api/disks">Disks</a> | <a href="/api/threads">Threads</a></p>
            <p>Live feed: websocket on <code>` + cfg.Server.FeedPath + `</code></p>
            </body>
            </html>`))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Error writing JSON response")
	}
}

func (a *analysis) handleDisks(w http.ResponseWriter, r *http.Request) {
	disks := iostate.Disks(a.store)
	if disks == nil {
		disks = []string{}
	}
	writeJSON(w, disks)
}

func (a *analysis) handleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := iostate.Threads(a.store)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if threads == nil {
		threads = []iostate.ThreadIO{}
	}
	writeJSON(w, threads)
}

// handleThroughput answers ?disk=NAME[&start=NS&end=NS&buckets=N]. The
// range defaults to the whole history and buckets to 1.
func (a *analysis) handleThroughput(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	disk := q.Get("disk")
	if disk == "" {
		http.Error(w, "missing disk parameter", http.StatusBadRequest)
		return
	}
	start, err := intParam(q.Get("start"), a.store.StartTime())
	if err != nil {
		http.Error(w, "bad start: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := intParam(q.Get("end"), a.store.CurrentEndTime())
	if err != nil {
		http.Error(w, "bad end: "+err.Error(), http.StatusBadRequest)
		return
	}
	buckets, err := intParam(q.Get("buckets"), 1)
	if err != nil || buckets <= 0 || buckets > 10000 {
		http.Error(w, "bad buckets", http.StatusBadRequest)
		return
	}

	series, err := iostate.DiskThroughputSeries(a.store, disk, start, end, int(buckets))
	switch {
	case iostate.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, series)
	}
}

func intParam(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
