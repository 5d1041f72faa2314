package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Heartbeat metrics
var (
	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "heartbeats_total",
		Help:      "Total number of ping frames sent to the engine",
	})

	PongsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "pongs_total",
		Help:      "Total number of pong frames received from the engine",
	})
)

// Invocation metrics
var (
	InvocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "invocations_total",
		Help:      "Total number of invoke frames processed",
	})

	InvocationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "invocation_errors_total",
		Help:      "Total number of invocations that ended in an error frame",
	}, []string{"kind"})

	InvocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "invocation_latency_seconds",
		Help:      "Wall-clock duration of sandbox invocations",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	ChunksReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "chunks_read_total",
		Help:      "Total number of input chunks consumed by the sandbox",
	})

	ChunksWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "chunks_written_total",
		Help:      "Total number of output chunks emitted by the sandbox",
	})

	OrphanChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cocaine",
		Subsystem: "slave",
		Name:      "orphan_chunks_total",
		Help:      "Total number of stray chunk frames dropped outside an invocation",
	})
)
