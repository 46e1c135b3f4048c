package metrics

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn stages timed by StageDuration.
const (
	StageRecord     = "record"
	StageTranscribe = "transcribe"
	StageComplete   = "complete"
	StageSynthesize = "synthesize"
	StagePlay       = "play"
)

// Turn outcomes counted by Turns.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeQuit   = "quit"
	OutcomeEmpty  = "empty"
)

// Metrics is safe to use as a nil pointer, every method is then a no-op.
type Metrics struct {
	Turns          *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	RecordingStops *prometheus.CounterVec
	Moods          *prometheus.CounterVec
	ReplyRunes     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_turns_total",
			Help: "Conversation turns by outcome",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxchat_stage_duration_seconds",
			Help:    "Time spent in each stage of a turn",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		RecordingStops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_recording_stops_total",
			Help: "Recordings by the reason they stopped",
		}, []string{"reason"}),
		Moods: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_moods_total",
			Help: "Detected user moods",
		}, []string{"mood"}),
		ReplyRunes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxchat_reply_runes",
			Help:    "Length of assistant replies in runes",
			Buckets: prometheus.ExponentialBuckets(16, 2, 8),
		}),
	}
}

func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// Since records the time elapsed from start for stage.
func (m *Metrics) Since(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordingStopped(reason string) {
	if m == nil {
		return
	}
	m.RecordingStops.WithLabelValues(reason).Inc()
}

func (m *Metrics) Mood(mood string) {
	if m == nil {
		return
	}
	m.Moods.WithLabelValues(mood).Inc()
}

func (m *Metrics) Reply(runes int) {
	if m == nil {
		return
	}
	m.ReplyRunes.Observe(float64(runes))
}

func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
