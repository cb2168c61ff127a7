package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache and routing metrics, registered on the default registry.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "vectorstore",
		Name:      "cache_hits_total",
		Help:      "Tenant index cache hits.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "vectorstore",
		Name:      "cache_misses_total",
		Help:      "Tenant index cache misses that triggered a load.",
	})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "vectorstore",
		Name:      "cache_invalidations_total",
		Help:      "Tenant index cache entries dropped by invalidation.",
	})

	fallbackSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "vectorstore",
		Name:      "fallback_searches_total",
		Help:      "Searches served by the ephemeral backend after the persistent backend failed or returned nothing.",
	}, []string{"reason"})
)
