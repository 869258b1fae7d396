// Package metrics exposes prometheus collectors for the scan loop. The
// collectors are package-level so any layer can bump them; the HTTP
// endpoint only exists when Serve is called with a listen address.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "statarb_scans_total", Help: "Completed scan sweeps"},
	)
	ScanErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "statarb_scan_errors_total", Help: "Pair scans that failed"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "statarb_signals_total", Help: "Signal events emitted"},
		[]string{"pair", "action"},
	)
	BarsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "statarb_bars_skipped_total", Help: "Bars dropped before the signal path"},
		[]string{"pair", "reason"},
	)
	LastZScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "statarb_last_zscore", Help: "Most recent z-score per pair"},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(ScansTotal, ScanErrorsTotal, SignalsTotal, BarsSkippedTotal, LastZScore)
}

// Serve starts the /metrics endpoint on addr and returns the server so the
// caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
