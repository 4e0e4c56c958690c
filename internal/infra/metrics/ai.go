package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiTokensIn, aiTokensOut, aiTokensTotal, aiCallsLatencyMs, aiFallbacksTotal)
}

var aiTokensIn = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_tokens_in",
		Help: "Sum of prompt (input) tokens per provider/model.",
	},
	[]string{"provider", "model"},
)

var aiTokensOut = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_tokens_out",
		Help: "Sum of completion (output) tokens per provider/model.",
	},
	[]string{"provider", "model"},
)

var aiTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_tokens_total",
		Help: "Sum of total tokens per provider/model.",
	},
	[]string{"provider", "model"},
)

var aiCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ai_calls_latency_ms",
		Help:    "AI call latency distribution in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000},
	},
	[]string{"provider", "model", "success"},
)

var aiFallbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_fallbacks_total",
		Help: "Generations served by the fallback provider after the primary failed.",
	},
	[]string{"provider"},
)

func ObserveGeneration(provider, model string, tokensIn, tokensOut, tokensTotal, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiTokensTotal.WithLabelValues(lbl...).Add(float64(tokensTotal))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncFallback(provider string) {
	aiFallbacksTotal.WithLabelValues(norm(provider)).Inc()
}
