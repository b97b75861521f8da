package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store-level gauges
	TriplesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyomega_triples_total",
			Help: "Total number of triples recorded in the SPO index",
		},
	)

	AtomsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyomega_atoms_total",
			Help: "Total number of interned atoms",
		},
	)

	AtomBytesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyomega_atom_bytes_total",
			Help: "Total bytes consumed by the atom store's backing chunks",
		},
	)

	TemporalVersionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skyomega_temporal_versions_total",
			Help: "Total number of bitemporal versions recorded, by index rotation",
		},
		[]string{"rotation"},
	)

	// Page cache metrics
	PageCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyomega_page_cache_hits_total",
			Help: "Page cache hits, by tree",
		},
		[]string{"tree"},
	)

	PageCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyomega_page_cache_misses_total",
			Help: "Page cache misses, by tree",
		},
		[]string{"tree"},
	)

	PageCacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyomega_page_cache_evictions_total",
			Help: "Page cache LRU evictions, by tree",
		},
		[]string{"tree"},
	)

	// B+Tree structural metrics
	PageSplitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyomega_page_splits_total",
			Help: "Leaf and internal page splits, by tree",
		},
		[]string{"tree"},
	)

	// Single-writer lock metrics
	WriterLockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skyomega_writer_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the single-writer lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query engine metrics
	ActiveQueryIterators = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyomega_active_query_iterators",
			Help: "Number of currently open query result iterators",
		},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skyomega_query_duration_seconds",
			Help:    "Query evaluation duration, by operator kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operator"},
	)

	// Patch executor metrics
	PatchBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skyomega_patch_batch_duration_seconds",
			Help:    "N3 patch batch evaluation + apply duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	PatchesAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skyomega_patches_applied_total",
			Help: "Total number of N3 patches successfully committed",
		},
	)

	PatchesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skyomega_patches_failed_total",
			Help: "Total number of N3 patches rolled back",
		},
	)

	// Scrub cycle metrics (orphan-page reclamation)
	ScrubCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skyomega_scrub_cycle_duration_seconds",
			Help:    "Duration of one orphan-page scrub cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScrubOrphansReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skyomega_scrub_orphans_reclaimed_total",
			Help: "Total number of allocated-but-unreferenced pages reclaimed by the scrub loop",
		},
	)
)

func init() {
	prometheus.MustRegister(TriplesTotal)
	prometheus.MustRegister(AtomsTotal)
	prometheus.MustRegister(AtomBytesTotal)
	prometheus.MustRegister(TemporalVersionsTotal)

	prometheus.MustRegister(PageCacheHitsTotal)
	prometheus.MustRegister(PageCacheMissesTotal)
	prometheus.MustRegister(PageCacheEvictionsTotal)
	prometheus.MustRegister(PageSplitsTotal)

	prometheus.MustRegister(WriterLockWaitDuration)

	prometheus.MustRegister(ActiveQueryIterators)
	prometheus.MustRegister(QueryDuration)

	prometheus.MustRegister(PatchBatchDuration)
	prometheus.MustRegister(PatchesAppliedTotal)
	prometheus.MustRegister(PatchesFailedTotal)

	prometheus.MustRegister(ScrubCycleDuration)
	prometheus.MustRegister(ScrubOrphansReclaimedTotal)
}

// Handler returns the Prometheus HTTP handler, for an external collaborator
// to mount; this module never starts a listener itself.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations. Every subsystem that reports a
// duration histogram (scrub cycles, patch batches, query evaluation) uses
// this same helper.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
