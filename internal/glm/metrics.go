package glm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evalTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_objective_evaluations_total",
		Help: "Total number of loss-and-gradient evaluations",
	})

	evalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bowyer_objective_evaluation_duration_seconds",
		Help:    "Wall time of one loss-and-gradient evaluation including the synchronize barrier",
		Buckets: prometheus.DefBuckets,
	})
)
