// Package metrics exposes Prometheus collectors for the device link and the
// dispatch loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soundsight",
			Subsystem: "link",
			Name:      "frames_decoded_total",
			Help:      "Payloads extracted from the device stream.",
		},
	)
	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soundsight",
			Subsystem: "link",
			Name:      "bytes_received_total",
			Help:      "Bytes read from the device socket.",
		},
	)
	decodeOverflows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soundsight",
			Subsystem: "link",
			Name:      "decode_overflows_total",
			Help:      "Unterminated frames dropped after exceeding the buffer cap.",
		},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundsight",
			Subsystem: "link",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by result.",
		},
		[]string{"result"},
	)
	linkState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "soundsight",
			Subsystem: "link",
			Name:      "state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 failed.",
		},
	)
	captions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundsight",
			Subsystem: "dispatch",
			Name:      "captions_total",
			Help:      "Caption messages by outcome.",
		},
		[]string{"outcome"},
	)
	directions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundsight",
			Subsystem: "dispatch",
			Name:      "directions_total",
			Help:      "Direction messages by direction.",
		},
		[]string{"direction"},
	)
	dispatchBatch = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "soundsight",
			Subsystem: "dispatch",
			Name:      "batch_size",
			Help:      "Payloads handled per non-empty tick.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesDecoded, bytesReceived, decodeOverflows, connectAttempts, linkState,
			captions, directions, dispatchBatch,
		)
	})
}

func RecordRead(bytes, frames int) {
	RegisterMetrics()
	bytesReceived.Add(float64(bytes))
	framesDecoded.Add(float64(frames))
}

func RecordOverflow() {
	RegisterMetrics()
	decodeOverflows.Inc()
}

func RecordConnect(success bool) {
	RegisterMetrics()
	result := "failed"
	if success {
		result = "connected"
	}
	connectAttempts.WithLabelValues(result).Inc()
}

func SetLinkState(state int) {
	RegisterMetrics()
	linkState.Set(float64(state))
}

func RecordCaption(delivered bool) {
	RegisterMetrics()
	outcome := "suppressed"
	if delivered {
		outcome = "delivered"
	}
	captions.WithLabelValues(outcome).Inc()
}

func RecordDirection(direction string) {
	RegisterMetrics()
	directions.WithLabelValues(direction).Inc()
}

func RecordBatch(n int) {
	RegisterMetrics()
	dispatchBatch.Observe(float64(n))
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
