package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are declared next to the code they instrument (stories, credits,
// webhooks, AI calls) and enqueued here from each file's init. MustRegister
// flushes the queue into the default registry once, at process startup.

var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister installs every enqueued collector. Safe to call more than once;
// only the first call registers.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(pending...)
	})
}
