package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	AllocationsTotal       *prometheus.CounterVec
	AllocationDuration     *prometheus.HistogramVec
	AllocationConflicts    *prometheus.CounterVec
	DepositEventsTotal     *prometheus.CounterVec
	StaleEventsTotal       *prometheus.CounterVec
	DepositCreditedTotal   *prometheus.CounterVec
	ClassifierMismatches   *prometheus.CounterVec
	VerificationsTotal     *prometheus.CounterVec
	WatchRegistrationTotal *prometheus.CounterVec
}

// Business 在包加载时注册到默认 Registry，未调用 Init 的组件 (测试、CLI) 也能直接使用
var Business = newBusinessMetrics(promauto.With(prometheus.DefaultRegisterer))

func newBusinessMetrics(f promauto.Factory) *BusinessMetrics {
	return &BusinessMetrics{
		AllocationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_address_allocations_total",
			Help: "Deposit address allocations by source and outcome",
		}, []string{"chain", "source", "outcome"}),
		AllocationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_address_allocation_duration_seconds",
			Help:    "Duration of address allocation",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
		AllocationConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_address_allocation_conflicts_total",
			Help: "Unique constraint conflicts resolved during allocation",
		}, []string{"chain", "kind"}),
		DepositEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_deposit_events_total",
			Help: "Deposit events ingested",
		}, []string{"chain", "status"}),
		StaleEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_deposit_stale_events_total",
			Help: "Out-of-order confirmation updates ignored",
		}, []string{"chain"}),
		DepositCreditedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_deposit_credited_total",
			Help: "Deposits handed to the ledger for credit",
		}, []string{"chain", "asset"}),
		ClassifierMismatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_classifier_mismatch_total",
			Help: "Deposit addresses whose stored chain disagrees with the classifier",
		}, []string{"stored", "classified"}),
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_mnemonic_verifications_total",
			Help: "Recovery phrase challenge attempts",
		}, []string{"outcome"}),
		WatchRegistrationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_watch_registrations_total",
			Help: "Upstream address watch registrations",
		}, []string{"chain", "outcome"}),
	}
}
