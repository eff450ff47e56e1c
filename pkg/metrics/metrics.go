package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Vault metrics — the process-local view of the engine's Metrics cell
	// (spec.md §3.2, §4.8). Collector sets VaultsTotal and
	// StorageUsedBytes from a polled snapshot of the cell, and pkg/vault
	// moves VaultsTotal on each status change; update_metrics itself
	// writes only the cell.
	VaultsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaultengine_vaults_total",
			Help: "Total number of vaults by status",
		},
		[]string{"status"},
	)

	StorageUsedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultengine_storage_used_bytes",
			Help: "Sum of bytes_used across all vaults",
		},
	)

	MembersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaultengine_members_total",
			Help: "Total number of vault members by role and status",
		},
		[]string{"role", "status"},
	)

	// Invite metrics
	InvitesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_invites_issued_total",
			Help: "Total number of invites generated",
		},
	)

	InvitesClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_invites_claimed_total",
			Help: "Total number of invites claimed",
		},
	)

	InvitesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_invites_expired_total",
			Help: "Total number of invites expired by maintenance",
		},
	)

	// Upload metrics
	ChunksReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_upload_chunks_received_total",
			Help: "Total number of upload chunks accepted",
		},
	)

	UploadsFinalizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_uploads_finalized_total",
			Help: "Total number of uploads finalized into content items",
		},
	)

	UploadsAbortedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_uploads_aborted_total",
			Help: "Total number of uploads aborted or garbage-collected",
		},
	)

	// Payment metrics
	PaymentVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultengine_payment_verifications_total",
			Help: "Total number of payment verification attempts by result",
		},
		[]string{"result"},
	)

	BillingEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_billing_entries_total",
			Help: "Total number of billing entries appended",
		},
	)

	// Operation latency metrics
	VaultCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultengine_vault_create_duration_seconds",
			Help:    "Time taken to create a vault in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UploadFinishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultengine_upload_finish_duration_seconds",
			Help:    "Time taken to finalize an upload in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PaymentVerifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultengine_payment_verify_duration_seconds",
			Help:    "Time taken for a payment verification round trip in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Maintenance metrics
	MaintenanceSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultengine_maintenance_sweep_duration_seconds",
			Help:    "Time taken for one daily_maintenance pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MaintenanceSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultengine_maintenance_sweeps_total",
			Help: "Total number of completed maintenance sweeps",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultengine_rate_limited_total",
			Help: "Total number of write operations rejected by the rate limiter",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(VaultsTotal)
	prometheus.MustRegister(StorageUsedBytes)
	prometheus.MustRegister(MembersTotal)
	prometheus.MustRegister(InvitesIssuedTotal)
	prometheus.MustRegister(InvitesClaimedTotal)
	prometheus.MustRegister(InvitesExpiredTotal)
	prometheus.MustRegister(ChunksReceivedTotal)
	prometheus.MustRegister(UploadsFinalizedTotal)
	prometheus.MustRegister(UploadsAbortedTotal)
	prometheus.MustRegister(PaymentVerificationsTotal)
	prometheus.MustRegister(BillingEntriesTotal)
	prometheus.MustRegister(VaultCreateDuration)
	prometheus.MustRegister(UploadFinishDuration)
	prometheus.MustRegister(PaymentVerifyDuration)
	prometheus.MustRegister(MaintenanceSweepDuration)
	prometheus.MustRegister(MaintenanceSweepsTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
