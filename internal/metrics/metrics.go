// Package metrics provides Prometheus metrics for the outbound pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesImported tracks message rows written by the importer
	MessagesImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "ingest",
			Name:      "messages_imported_total",
			Help:      "Total number of message rows inserted from provider reports",
		},
		[]string{"channel"},
	)

	// MessagesDropped tracks report rows that never became message rows
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "ingest",
			Name:      "messages_dropped_total",
			Help:      "Total number of report rows dropped before insert",
		},
		[]string{"reason"},
	)

	// RowsReclassified tracks campaign reassignments by category
	RowsReclassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "classify",
			Name:      "rows_reclassified_total",
			Help:      "Total number of stored messages whose campaign type was rewritten",
		},
		[]string{"category"},
	)

	// RowsLinked tracks messages linked to a customer
	RowsLinked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "linkage",
			Name:      "rows_linked_total",
			Help:      "Total number of messages linked to a customer",
		},
	)

	// AggregateRowsWritten tracks rebuilt cache rows per grouping
	AggregateRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "stats",
			Name:      "aggregate_rows_written_total",
			Help:      "Total number of aggregate cache rows written",
		},
		[]string{"grouping"},
	)

	// StoreRetries tracks retried row-store calls
	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Total number of retried row-store calls",
		},
		[]string{"component", "operation"},
	)

	// DeadLetters tracks rows that failed after per-row fallback
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outbound",
			Subsystem: "store",
			Name:      "dead_letters_total",
			Help:      "Total number of rows that still failed after per-row fallback",
		},
		[]string{"operation", "error_type"},
	)
)
