package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	requestsOpened    *prometheus.CounterVec
	requestsFulfilled *prometheus.CounterVec
	settlementsFailed *prometheus.CounterVec
	transfersRejected *prometheus.CounterVec
	queueLength       prometheus.Gauge
	latestNav         prometheus.Gauge
	reserveHeld       prometheus.Gauge
	currentEpoch      prometheus.Gauge
	feesClaimed       *prometheus.CounterVec
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			requestsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fundvault_requests_opened_total",
				Help: "Count of valuation round trips opened by action.",
			}, []string{"action"}),
			requestsFulfilled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fundvault_requests_fulfilled_total",
				Help: "Count of valuation round trips settled by action.",
			}, []string{"action"}),
			settlementsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fundvault_settlements_failed_total",
				Help: "Count of fulfillments rejected at settlement by action.",
			}, []string{"action"}),
			transfersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fundvault_transfers_rejected_total",
				Help: "Count of share transfers blocked by the restriction gate, by code.",
			}, []string{"code"}),
			queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fundvault_redemption_queue_length",
				Help: "Number of entries waiting in the redemption queue.",
			}),
			latestNav: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fundvault_latest_offchain_nav",
				Help: "Most recently reported off-reserve portfolio value, in reserve units.",
			}),
			reserveHeld: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fundvault_reserve_held",
				Help: "Reserve balance tracked by internal vault accounting.",
			}),
			currentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fundvault_current_epoch",
				Help: "Current accounting epoch.",
			}),
			feesClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fundvault_fees_claimed_total",
				Help: "Reserve units drained from the accrued fee pots, by pot.",
			}, []string{"pot"}),
		}
		prometheus.MustRegister(
			vaultRegistry.requestsOpened,
			vaultRegistry.requestsFulfilled,
			vaultRegistry.settlementsFailed,
			vaultRegistry.transfersRejected,
			vaultRegistry.queueLength,
			vaultRegistry.latestNav,
			vaultRegistry.reserveHeld,
			vaultRegistry.currentEpoch,
			vaultRegistry.feesClaimed,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveRequestOpened(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.requestsOpened.WithLabelValues(action).Inc()
}

func (m *VaultMetrics) ObserveRequestFulfilled(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.requestsFulfilled.WithLabelValues(action).Inc()
}

func (m *VaultMetrics) ObserveSettlementFailed(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.settlementsFailed.WithLabelValues(action).Inc()
}

func (m *VaultMetrics) ObserveTransferRejected(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.transfersRejected.WithLabelValues(code).Inc()
}

func (m *VaultMetrics) ObserveFeesClaimed(pot string, amount float64) {
	if m == nil {
		return
	}
	if pot == "" {
		pot = "unknown"
	}
	m.feesClaimed.WithLabelValues(pot).Add(amount)
}

func (m *VaultMetrics) SetQueueLength(length float64) {
	if m == nil {
		return
	}
	m.queueLength.Set(length)
}

func (m *VaultMetrics) SetLatestNav(nav float64) {
	if m == nil {
		return
	}
	m.latestNav.Set(nav)
}

func (m *VaultMetrics) SetReserveHeld(held float64) {
	if m == nil {
		return
	}
	m.reserveHeld.Set(held)
}

func (m *VaultMetrics) SetCurrentEpoch(epoch float64) {
	if m == nil {
		return
	}
	m.currentEpoch.Set(epoch)
}
