// Package metrics declares the Prometheus series this recorder
// exposes on its debug/metrics HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordingsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fc2dl",
		Name:      "recordings_active",
		Help:      "Number of recording sessions currently running.",
	})

	RecordingsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "recordings_started_total",
		Help:      "Total number of recording sessions started.",
	})

	RecordingsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "recordings_finished_total",
		Help:      "Total number of recording sessions finished, by outcome.",
	}, []string{"outcome"})

	FragmentsDownloadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "fragments_downloaded_total",
		Help:      "Total number of HLS fragments successfully fetched.",
	})

	FragmentsRetriedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "fragments_retried_total",
		Help:      "Total number of HLS fragment fetch retries.",
	})

	FragmentsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "fragments_failed_total",
		Help:      "Total number of HLS fragments that exhausted their retry budget.",
	})

	BytesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "stream_bytes_written_total",
		Help:      "Total bytes appended to stream output files.",
	})

	DownloadSpeedBytesPerSecond = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fc2dl",
		Name:      "download_speed_bytes_per_second",
		Help:      "Current stream-writing throughput in bytes per second.",
	})

	FragmentQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fc2dl",
		Name:      "fragment_queue_depth",
		Help:      "Current depth of the ordered fragment pipeline's queues.",
	}, []string{"queue"})

	WebsocketDisconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "websocket_disconnects_total",
		Help:      "Total number of control WebSocket disconnections, by kind.",
	}, []string{"kind"})

	HeartbeatsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "websocket_heartbeats_sent_total",
		Help:      "Total number of heartbeat frames sent on the control WebSocket.",
	})

	CommentsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "comments_received_total",
		Help:      "Total number of chat comment events received.",
	})

	RemuxDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fc2dl",
		Name:      "remux_duration_seconds",
		Help:      "Duration of external encoder remux invocations.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	RemuxFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fc2dl",
		Name:      "remux_failures_total",
		Help:      "Total number of external encoder remux failures.",
	})
)

// Register adds every series declared in this package to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RecordingsActive,
		RecordingsStartedTotal,
		RecordingsFinishedTotal,
		FragmentsDownloadedTotal,
		FragmentsRetriedTotal,
		FragmentsFailedTotal,
		BytesWrittenTotal,
		DownloadSpeedBytesPerSecond,
		FragmentQueueDepth,
		WebsocketDisconnectsTotal,
		HeartbeatsSentTotal,
		CommentsReceivedTotal,
		RemuxDuration,
		RemuxFailuresTotal,
	)
}
