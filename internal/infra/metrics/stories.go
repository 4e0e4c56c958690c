package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(storiesSubmittedTotal, storiesProcessedTotal, storyGenerationSeconds, storySalvageTotal)
}

var storiesSubmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stories_submitted_total",
		Help: "Total story generation requests accepted, labeled by length.",
	},
	[]string{"length"},
)

var storiesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stories_processed_total",
		Help: "Total stories driven to a terminal status, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var storyGenerationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "story_generation_seconds",
		Help:    "Wall-clock duration of a full generation pass.",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 320},
	},
	[]string{"status"},
)

var storySalvageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_salvage_total",
		Help: "How strictly the model output parsed, labeled by outcome.",
	},
	[]string{"outcome"}, // 'strict', 'partial', 'raw', 'unparsable'
)

func IncStorySubmitted(length string) {
	storiesSubmittedTotal.WithLabelValues(norm(length)).Inc()
}

func ObserveStoryProcessed(status string, seconds float64) {
	storiesProcessedTotal.WithLabelValues(norm(status)).Inc()
	storyGenerationSeconds.WithLabelValues(norm(status)).Observe(seconds)
}

func IncStorySalvage(outcome string) {
	storySalvageTotal.WithLabelValues(norm(outcome)).Inc()
}
