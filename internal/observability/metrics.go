package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstudio_synthesis_requests_total",
		Help: "TTS service calls by final status (ok, error, cancelled)",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voxstudio_synthesis_latency_seconds",
		Help:    "Latency of one segment synthesis including retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstudio_cache_lookups_total",
		Help: "Audio cache lookups by outcome (hit, miss)",
	}, []string{"outcome"})

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxstudio_active_jobs",
		Help: "Speak/export jobs currently sequencing",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstudio_jobs_total",
		Help: "Finished jobs by terminal state (complete, cancelled, failed)",
	}, []string{"state"})

	audioBytesProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxstudio_audio_bytes_total",
		Help: "Total audio bytes emitted to clients",
	})
)

func RecordSynthesis(status string, elapsed time.Duration) {
	synthesisRequests.WithLabelValues(status).Inc()
	if status == "ok" {
		synthesisLatency.Observe(elapsed.Seconds())
	}
}

func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
}

func JobStarted() {
	activeJobs.Inc()
}

func JobFinished(state string) {
	activeJobs.Dec()
	jobsTotal.WithLabelValues(state).Inc()
}

func AddAudioBytes(n int) {
	audioBytesProduced.Add(float64(n))
}
