package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpgw_jobs_total",
			Help: "Jobs by type and terminal outcome",
		},
		[]string{"type", "outcome"}, // SYNC_ORDERS... , complete|partial|failed|rejected
	)

	SyncRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpgw_sync_records_total",
			Help: "Records processed during sync by resource and result",
		},
		[]string{"resource", "result"}, // upserted|unchanged|skipped
	)

	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpgw_remote_requests_total",
			Help: "Remote API call outcomes by status class",
		},
		[]string{"class"}, // 2xx|4xx|5xx|transport
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpgw_webhook_deliveries_total",
			Help: "Inbound webhook deliveries by outcome",
		},
		[]string{"outcome"}, // accepted|duplicate|rejected
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		JobsTotal,
		SyncRecordsTotal,
		RemoteRequestsTotal,
		WebhookDeliveriesTotal,
	)
}
