// Package metrics exposes counters for key lifecycle events on the default
// prometheus registerer. Labels never carry ids or key material.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PairingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duet_couplekey_pairings_total",
		Help: "Successful initial key exchanges.",
	})
	RotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duet_couplekey_rotations_total",
		Help: "Couple key rotations performed locally.",
	})
	EnvelopesWrappedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duet_couplekey_envelopes_wrapped_total",
		Help: "Wrapped-key envelopes produced for peer devices.",
	})
	UnwrapFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duet_couplekey_unwrap_failures_total",
		Help: "Envelopes that failed to authenticate for this device.",
	})
	UnwrapThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duet_couplekey_unwrap_throttled_total",
		Help: "Unwrap attempts rejected by the per-sender rate limiter.",
	})
)
