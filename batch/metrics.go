package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	usersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplement_batch_users_total",
		Help: "Users processed by the correlation batch, by result.",
	}, []string{"priority", "result"})

	insightsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplement_batch_insights_total",
		Help: "Truth reports written by recomputes.",
	}, []string{"priority"})

	verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplement_verdicts_total",
		Help: "Classifier verdicts produced by recomputes.",
	}, []string{"category"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supplement_batch_run_duration_seconds",
		Help:    "Wall time of a batch run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"priority"})
)
