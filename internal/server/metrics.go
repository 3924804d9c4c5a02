package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	propagationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optix_propagations_total",
		Help: "Total number of beams propagated through a path",
	})
	fitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optix_fits_total",
		Help: "Total number of finished fit jobs by final status",
	}, []string{"status"})
	activeFits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optix_active_fits",
		Help: "Current number of fit jobs holding a worker slot",
	})
	fitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optix_fit_duration_seconds",
		Help:    "Wall time of fit jobs that reached the optimizer",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})
	fitDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optix_fit_distance",
		Help:    "Weighted waist distance of completed fits",
		Buckets: prometheus.ExponentialBuckets(1e-12, 100, 8),
	})
)
