package ecs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics.go exposes ChunkPool.Stats() (chunkpool.go's atomic, relaxed-
// ordering PoolStats — spec.md §5: "visible with eventual-consistency
// semantics only") as Prometheus gauges. Every field is wired as a
// GaugeFunc pulling the pool's current atomic snapshot on scrape rather
// than pushed on every Acquire/Release, which matches both Prometheus's
// own pull model and the relaxed-ordering semantics of the underlying
// counters — there is no moment at which the exported value is more
// "authoritative" than the live counter, so there is nothing to
// synchronize. Acquires/Releases/AcquireFailures are cumulative counts
// already monotonically maintained by PoolStats; they're exposed as
// GaugeFuncs rather than prometheus.Counters because a Counter demands
// this package track its own delta against the pool's atomic value,
// which would just reintroduce the synchronization the relaxed counters
// were chosen to avoid.
type Metrics struct {
	pool *ChunkPool
}

// NewMetrics registers ChunkPool gauges against reg and returns a handle
// retaining no mutable state of its own — every Get call on the returned
// gauges re-reads pool.Stats() directly.
func NewMetrics(reg prometheus.Registerer, pool *ChunkPool) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{pool: pool}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "total_chunks",
		Help:      "Total chunks ever allocated by the pool (in use plus free).",
	}, func() float64 { return float64(m.pool.Stats().TotalChunks) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "chunks_in_use",
		Help:      "Chunks currently acquired by archetypes.",
	}, func() float64 { return float64(m.pool.Stats().ChunksInUse) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "chunks_free",
		Help:      "Chunks sitting on the pool's free list.",
	}, func() float64 { return float64(m.pool.Stats().ChunksFree) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "blocks_allocated",
		Help:      "Allocator blocks backing the pool's chunks.",
	}, func() float64 { return float64(m.pool.Stats().BlocksAllocated) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "acquires_total",
		Help:      "Cumulative count of successful chunk acquisitions.",
	}, func() float64 { return float64(m.pool.Stats().Acquires) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "releases_total",
		Help:      "Cumulative count of chunk releases back to the pool.",
	}, func() float64 { return float64(m.pool.Stats().Releases) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ecs",
		Subsystem: "chunk_pool",
		Name:      "acquire_failures_total",
		Help:      "Cumulative count of acquisitions that failed (allocator exhausted or MaxChunks reached).",
	}, func() float64 { return float64(m.pool.Stats().AcquireFailures) })

	return m
}
