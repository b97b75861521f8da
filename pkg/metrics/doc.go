/*
Package metrics provides Prometheus metrics collection and exposition for the
store.

The metrics package defines and registers metrics using the Prometheus
client library, providing observability into store size, page cache
behavior, query and patch latency, and scrub-loop housekeeping. Metrics are
exposed via an http.Handler for an external collaborator to mount; this
module never starts a listener itself.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (triple count)       │          │
	│  │  Counter: Monotonic increases (patches)     │          │
	│  │  Histogram: Distributions (query latency)   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Store: triples, atoms, temporal versions   │          │
	│  │  Page cache: hits, misses, evictions        │          │
	│  │  B+Tree: page splits                        │          │
	│  │  Writer lock: wait duration                 │          │
	│  │  Query: active iterators, duration          │          │
	│  │  Patch: batch duration, applied/failed      │          │
	│  │  Scrub: cycle duration, orphans reclaimed   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - metrics.Handler() returns promhttp       │          │
	│  │  - Caller mounts it wherever it likes       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: triple count, atom count, active query iterators
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: patches applied total, patches failed total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: query duration, patch batch duration, scrub cycle duration

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

skyomega_triples_total:
  - Type: Gauge
  - Description: Total number of triples recorded in the SPO index

skyomega_atoms_total:
  - Type: Gauge
  - Description: Total number of interned atoms

skyomega_atom_bytes_total:
  - Type: Gauge
  - Description: Total bytes consumed by the atom store's backing chunks

skyomega_temporal_versions_total{rotation}:
  - Type: Gauge
  - Description: Total bitemporal versions recorded, by index rotation
  - Labels: rotation (spot/post/ospt/tspo)

skyomega_page_cache_hits_total{tree}, skyomega_page_cache_misses_total{tree},
skyomega_page_cache_evictions_total{tree}:
  - Type: Counter
  - Description: Page cache behavior, by tree

skyomega_page_splits_total{tree}:
  - Type: Counter
  - Description: Leaf and internal page splits, by tree

skyomega_writer_lock_wait_seconds:
  - Type: Histogram
  - Description: Time spent waiting to acquire the single-writer lock

skyomega_active_query_iterators:
  - Type: Gauge
  - Description: Number of currently open query result iterators

skyomega_query_duration_seconds{operator}:
  - Type: Histogram
  - Description: Query evaluation duration, by operator kind
    ("pattern_scan", "temporal_pattern_scan", "bgp")

skyomega_patch_batch_duration_seconds:
  - Type: Histogram
  - Description: N3 patch batch evaluation + apply duration

skyomega_patches_applied_total, skyomega_patches_failed_total:
  - Type: Counter
  - Description: N3 patches committed vs rolled back

skyomega_scrub_cycle_duration_seconds:
  - Type: Histogram
  - Description: Duration of one orphan-page scrub cycle

skyomega_scrub_orphans_reclaimed_total:
  - Type: Counter
  - Description: Total allocated-but-unreferenced pages reclaimed

# Usage

	import "github.com/bemafred/sky-omega/pkg/metrics"

	metrics.TriplesTotal.Set(1000)
	metrics.PatchesAppliedTotal.Inc()

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.QueryDuration, "bgp")

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)

# Integration Points

This package integrates with:

  - pkg/store: updates store-level gauges after every mutation
  - pkg/btree: reports page cache and split metrics
  - pkg/query: times query evaluation by operator kind
  - pkg/patch: times patch batches, counts applied/failed
  - pkg/scrub: times scrub cycles, counts reclaimed orphan pages
  - Prometheus: scrapes whatever endpoint the caller mounts Handler() on

# Health Checks

The health.go file in this package is a generic, dependency-free component
health registry (RegisterComponent/UpdateComponent/GetHealth/GetReadiness)
plus http.HandlerFunc wrappers (HealthHandler/ReadyHandler/LivenessHandler)
an external collaborator can mount. It tracks no dependency beyond the
components an embedder registers with it; GetReadiness treats "store" and
"scrub" as critical by default.
*/
package metrics
