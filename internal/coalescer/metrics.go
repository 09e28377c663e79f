package coalescer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qpac_change_signals_total",
		Help: "Whitelist change signals by outcome (queued or coalesced into a queued one).",
	}, []string{"outcome"})

	regenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qpac_regenerations_total",
		Help: "PAC regeneration passes by result.",
	}, []string{"result"})

	regenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qpac_regeneration_duration_seconds",
		Help:    "Duration of PAC regeneration passes.",
		Buckets: prometheus.DefBuckets,
	})

	whitelistHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qpac_whitelist_hosts",
		Help: "Number of whitelisted hosts seen by the last regeneration pass.",
	})
)
