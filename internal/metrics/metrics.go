// Package metrics provides Prometheus instrumentation for the session store,
// the flash channel and the expiry reaper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	// StoreOperations counts store calls, labeled by operation and backend.
	StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oncesession_store_operations_total",
		Help: "Total number of session store operations",
	}, []string{"op", "backend"}) // op = "load", "save", "update", "update_ttl", "delete", "purge"

	// StoreErrors counts store calls that returned an error.
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oncesession_store_errors_total",
		Help: "Total number of failed session store operations",
	}, []string{"op", "backend"})

	// LiveSessions tracks the number of records held by in-process stores.
	LiveSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oncesession_live_sessions",
		Help: "Current number of session records held by the store",
	}, []string{"backend"})

	// LockFaults counts recoveries from an interrupted store write.
	LockFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oncesession_lock_faults_total",
		Help: "Total number of store lock faults recovered by resetting the session map",
	})

	// FlashMessages counts flash channel events, labeled by event:
	// "inserted", "flushed" or "forwarded".
	FlashMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oncesession_flash_messages_total",
		Help: "Total number of flash channel events",
	}, []string{"event", "slot"})

	// ReapedSessions counts records removed by the expiry reaper.
	ReapedSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oncesession_reaped_sessions_total",
		Help: "Total number of expired sessions removed by the reaper",
	})
)

func init() {
	prometheus.MustRegister(
		StoreOperations,
		StoreErrors,
		LiveSessions,
		LockFaults,
		FlashMessages,
		ReapedSessions,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStore records a store call and, when err is non-nil, its failure.
func ObserveStore(op, backend string, err error) {
	StoreOperations.WithLabelValues(op, backend).Inc()
	if err != nil {
		StoreErrors.WithLabelValues(op, backend).Inc()
	}
}
