// Package metrics wires github.com/rcrowley/go-metrics counters, used by the
// leveldb storage port's commit counter, mirroring the per-operation meters
// the teacher registers in storage/database/leveldb_database.go (compaction/read/write
// meters created once and incremented per call).
package metrics

import "github.com/rcrowley/go-metrics"

var registry = metrics.NewRegistry()

// Counter returns (creating if necessary) a named counter in the shared
// registry.
func Counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, registry)
}

// Timer returns (creating if necessary) a named timer in the shared
// registry.
func Timer(name string) metrics.Timer {
	return metrics.GetOrRegisterTimer(name, registry)
}

// Registry exposes the underlying go-metrics registry for export.
func Registry() metrics.Registry {
	return registry
}
