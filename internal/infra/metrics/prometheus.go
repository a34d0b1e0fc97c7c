package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audiotextbot/internal/domain"
)

var states = []domain.PipelineState{
	domain.StateIdle,
	domain.StateRecording,
	domain.StateStopping,
}

// Metrics records pipeline measurements on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	SegmentsFlushed prometheus.Counter
	SegmentsSilent  prometheus.Counter
	SegmentDuration prometheus.Histogram
	FramesDrop      prometheus.Counter

	// Transcription metrics
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// Reply metrics
	Replies       *prometheus.CounterVec
	ReplyDuration prometheus.Histogram
	StaleReplies  prometheus.Counter

	State *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		SegmentsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiotextbot_segments_flushed_total",
			Help: "Total number of audio segments handed to transcription",
		}),
		SegmentsSilent: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiotextbot_segments_silent_total",
			Help: "Total number of segments that produced no text",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiotextbot_segment_duration_seconds",
			Help:    "Duration of audio in flushed segments",
			Buckets: prometheus.LinearBuckets(1, 1, 10), // 1s to 10s
		}),
		FramesDrop: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiotextbot_frames_dropped_total",
			Help: "Total number of input frames dropped because the capture buffer was full",
		}),

		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiotextbot_transcriptions_total",
			Help: "Total number of transcription calls by result",
		}, []string{"result"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiotextbot_transcription_duration_seconds",
			Help:    "Time spent transcribing a segment",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),

		Replies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiotextbot_replies_total",
			Help: "Total number of chat requests by result",
		}, []string{"result"}),
		ReplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiotextbot_reply_duration_seconds",
			Help:    "Chat API round-trip time",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		StaleReplies: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiotextbot_replies_stale_total",
			Help: "Total number of replies dropped because a newer one was already shown",
		}),

		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audiotextbot_pipeline_state",
			Help: "1 for the current pipeline state, 0 otherwise",
		}, []string{"state"}),
	}

	m.StateChanged(domain.StateIdle)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SegmentFlushed(d time.Duration) {
	m.SegmentsFlushed.Inc()
	m.SegmentDuration.Observe(d.Seconds())
}

func (m *Metrics) SegmentSilent() {
	m.SegmentsSilent.Inc()
}

func (m *Metrics) FramesDropped(n int) {
	m.FramesDrop.Add(float64(n))
}

func (m *Metrics) TranscriptionDone(d time.Duration, err error) {
	m.Transcriptions.WithLabelValues(result(err)).Inc()
	m.TranscriptionDuration.Observe(d.Seconds())
}

func (m *Metrics) ReplyDone(d time.Duration, err error) {
	m.Replies.WithLabelValues(result(err)).Inc()
	m.ReplyDuration.Observe(d.Seconds())
}

func (m *Metrics) ReplyStale() {
	m.StaleReplies.Inc()
}

func (m *Metrics) StateChanged(state domain.PipelineState) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(string(s)).Set(v)
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
