package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Cart operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	checkoutTotal = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cart_checkout_total_amount",
			Help:    "Cart total at successful checkout, in the smallest currency unit.",
			Buckets: prometheus.ExponentialBuckets(100_000, 4, 10),
		},
	)
)

func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cartOperations.WithLabelValues(operation, result).Inc()
}
