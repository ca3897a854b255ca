package metrics

import (
	"strconv"

	"fundvault/core/events"
)

// Emitter decorates an event emitter so every vault event also updates the
// prometheus registry. Gauges that need full state (queue length, reserve
// held) are refreshed by the daemon after each mutating call instead.
type Emitter struct {
	next    events.Emitter
	metrics *VaultMetrics
}

// NewEmitter wraps next with metric instrumentation. A nil next falls back
// to the no-op emitter.
func NewEmitter(next events.Emitter) *Emitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &Emitter{next: next, metrics: Vault()}
}

func (e *Emitter) Emit(event events.Event) {
	switch event.EventType() {
	case events.TypeVaultDepositRequested:
		e.metrics.ObserveRequestOpened("deposit")
	case events.TypeVaultRedeemRequested:
		e.metrics.ObserveRequestOpened("redeem")
	case events.TypeVaultEpochAdvanceRequested:
		e.metrics.ObserveRequestOpened("advance_epoch")
	case events.TypeVaultQueueProcessRequested:
		e.metrics.ObserveRequestOpened("process_queue")
	case events.TypeVaultRequestFulfilled:
		attrs := event.Event().Attributes
		e.metrics.ObserveRequestFulfilled(attrs["action"])
		if nav, err := strconv.ParseFloat(attrs["nav"], 64); err == nil {
			e.metrics.SetLatestNav(nav)
		}
	case events.TypeVaultEpochAdvanced:
		attrs := event.Event().Attributes
		if epoch, err := strconv.ParseFloat(attrs["epoch"], 64); err == nil {
			e.metrics.SetCurrentEpoch(epoch)
		}
	case events.TypeVaultFeesClaimed:
		attrs := event.Event().Attributes
		if amount, err := strconv.ParseFloat(attrs["amount"], 64); err == nil {
			e.metrics.ObserveFeesClaimed(attrs["pot"], amount)
		}
	case events.TypeComplianceTransferRejected:
		attrs := event.Event().Attributes
		e.metrics.ObserveTransferRejected(attrs["code"])
	}
	e.next.Emit(event)
}
