// Package metrics exposes prometheus instrumentation for transfers.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valetbench_transfers_total",
			Help: "Number of finished transfer attempts.",
		},
		[]string{"strategy", "result"},
	)

	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valetbench_transfer_duration_seconds",
			Help:    "Wall time of a transfer attempt in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"strategy"},
	)

	TransferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valetbench_transfer_bytes_total",
			Help: "Bytes of successfully transferred files.",
		},
		[]string{"strategy"},
	)

	Inflight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "valetbench_inflight",
			Help: "Transfers currently in flight.",
		},
		[]string{"strategy"},
	)
)

// ObserveTransfer records one finished attempt.
func ObserveTransfer(strategy string, ok bool, elapsed time.Duration, bytes int64) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	TransfersTotal.WithLabelValues(strategy, result).Inc()
	TransferDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if ok {
		TransferBytes.WithLabelValues(strategy).Add(float64(bytes))
	}
}

// Serve exposes /metrics on addr in the background. The returned server
// should be closed by the caller.
func Serve(addr string, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}
