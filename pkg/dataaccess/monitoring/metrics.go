package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MongoLatency is the duration of Mongo queries.
	MongoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dataaccess_mongo_latency",
			Help: "Duration of Mongo queries",
		},
		[]string{"dal", "query", "database", "collection"},
	)

	// MongoTotalRequests is the total number of Mongo requests.
	MongoTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataaccess_mongo_total_requests",
			Help: "Total number of Mongo requests",
		},
		[]string{"dal", "query", "database", "collection"},
	)

	// SettingsWriteLatency is the duration of settings file writes.
	SettingsWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "dataaccess_settings_write_latency",
			Help: "Duration of settings file writes",
		},
	)

	// SettingsTotalWrites is the total number of settings file writes.
	SettingsTotalWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataaccess_settings_total_writes",
			Help: "Total number of settings file writes",
		},
		[]string{"result"},
	)
)
