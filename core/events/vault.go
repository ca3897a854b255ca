package events

import (
	"math/big"

	"fundvault/core/types"
	"fundvault/crypto"
)

const (
	TypeVaultDepositRequested      = "vault.deposit.requested"
	TypeVaultRedeemRequested       = "vault.redeem.requested"
	TypeVaultEpochAdvanceRequested = "vault.epoch.requested"
	TypeVaultQueueProcessRequested = "vault.queue.requested"
	TypeVaultRequestFulfilled      = "vault.request.fulfilled"
	TypeVaultDepositSettled        = "vault.deposit.settled"
	TypeVaultRedeemSettled         = "vault.redeem.settled"
	TypeVaultRedemptionQueued      = "vault.redeem.queued"
	TypeVaultQueueEntryPaid        = "vault.queue.paid"
	TypeVaultEpochAdvanced         = "vault.epoch.advanced"
	TypeVaultFeesClaimed           = "vault.fees.claimed"
	TypeVaultExcessSwept           = "vault.excess.swept"
)

// DepositRequested is emitted when a deposit request passes synchronous
// validation and a NAV round trip has been opened for it.
type DepositRequested struct {
	Investor  crypto.Address
	Amount    *big.Int
	RequestID [32]byte
}

func (DepositRequested) EventType() string { return TypeVaultDepositRequested }

func (e DepositRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDepositRequested,
		Attributes: map[string]string{
			"investor":  e.Investor.String(),
			"amount":    formatAmount(e.Amount),
			"requestId": requestIDToString(e.RequestID),
		},
	}
}

// RedeemRequested is emitted when a redemption request passes synchronous
// validation.
type RedeemRequested struct {
	Investor  crypto.Address
	Shares    *big.Int
	RequestID [32]byte
}

func (RedeemRequested) EventType() string { return TypeVaultRedeemRequested }

func (e RedeemRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRedeemRequested,
		Attributes: map[string]string{
			"investor":  e.Investor.String(),
			"shares":    formatAmount(e.Shares),
			"requestId": requestIDToString(e.RequestID),
		},
	}
}

// EpochAdvanceRequested is emitted when an operator opens an epoch advance
// round trip.
type EpochAdvanceRequested struct {
	Caller    crypto.Address
	RequestID [32]byte
}

func (EpochAdvanceRequested) EventType() string { return TypeVaultEpochAdvanceRequested }

func (e EpochAdvanceRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultEpochAdvanceRequested,
		Attributes: map[string]string{
			"caller":    e.Caller.String(),
			"requestId": requestIDToString(e.RequestID),
		},
	}
}

// QueueProcessRequested is emitted when an operator opens a queue processing
// round trip.
type QueueProcessRequested struct {
	Caller    crypto.Address
	RequestID [32]byte
}

func (QueueProcessRequested) EventType() string { return TypeVaultQueueProcessRequested }

func (e QueueProcessRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultQueueProcessRequested,
		Attributes: map[string]string{
			"caller":    e.Caller.String(),
			"requestId": requestIDToString(e.RequestID),
		},
	}
}

// RequestFulfilled is the completion event closing every oracle round trip.
// It carries the reported NAV alongside the original request coordinates so
// indexers can reconstruct pricing without replaying storage.
type RequestFulfilled struct {
	Investor  crypto.Address
	RequestID [32]byte
	Nav       *big.Int
	Amount    *big.Int
	Action    string
}

func (RequestFulfilled) EventType() string { return TypeVaultRequestFulfilled }

func (e RequestFulfilled) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRequestFulfilled,
		Attributes: map[string]string{
			"investor":  e.Investor.String(),
			"requestId": requestIDToString(e.RequestID),
			"nav":       formatAmount(e.Nav),
			"amount":    formatAmount(e.Amount),
			"action":    e.Action,
		},
	}
}

// DepositSettled is emitted once a deposit fulfillment has minted shares.
type DepositSettled struct {
	Investor  crypto.Address
	RequestID [32]byte
	Amount    *big.Int
	Fee       *big.Int
	NetAssets *big.Int
	Shares    *big.Int
}

func (DepositSettled) EventType() string { return TypeVaultDepositSettled }

func (e DepositSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDepositSettled,
		Attributes: map[string]string{
			"investor":  e.Investor.String(),
			"requestId": requestIDToString(e.RequestID),
			"amount":    formatAmount(e.Amount),
			"fee":       formatAmount(e.Fee),
			"netAssets": formatAmount(e.NetAssets),
			"shares":    formatAmount(e.Shares),
		},
	}
}

// RedeemSettled is emitted for the immediately paid portion of a redemption.
type RedeemSettled struct {
	Investor  crypto.Address
	RequestID [32]byte
	Shares    *big.Int
	Assets    *big.Int
}

func (RedeemSettled) EventType() string { return TypeVaultRedeemSettled }

func (e RedeemSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRedeemSettled,
		Attributes: map[string]string{
			"investor":  e.Investor.String(),
			"requestId": requestIDToString(e.RequestID),
			"shares":    formatAmount(e.Shares),
			"assets":    formatAmount(e.Assets),
		},
	}
}

// RedemptionQueued is emitted when a redemption remainder is parked on the
// FIFO queue because on-hand liquidity could not cover the full request.
type RedemptionQueued struct {
	Investor  crypto.Address
	RequestID [32]byte
	Shares    *big.Int
}

func (RedemptionQueued) EventType() string { return TypeVaultRedemptionQueued }

func (e RedemptionQueued) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRedemptionQueued,
		Attributes: map[string]string{
			"investor":  e.Investor.String(),
			"requestId": requestIDToString(e.RequestID),
			"shares":    formatAmount(e.Shares),
		},
	}
}

// QueueEntryPaid is emitted for every queue entry settled during queue
// processing.
type QueueEntryPaid struct {
	Investor        crypto.Address
	OriginRequestID [32]byte
	Shares          *big.Int
	Assets          *big.Int
}

func (QueueEntryPaid) EventType() string { return TypeVaultQueueEntryPaid }

func (e QueueEntryPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultQueueEntryPaid,
		Attributes: map[string]string{
			"investor":        e.Investor.String(),
			"originRequestId": requestIDToString(e.OriginRequestID),
			"shares":          formatAmount(e.Shares),
			"assets":          formatAmount(e.Assets),
		},
	}
}

// EpochAdvanced is emitted after an epoch advance fulfillment accrues fees.
type EpochAdvanced struct {
	Epoch           uint64
	OnchainAccrued  *big.Int
	OffchainAccrued *big.Int
	Nav             *big.Int
}

func (EpochAdvanced) EventType() string { return TypeVaultEpochAdvanced }

func (e EpochAdvanced) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultEpochAdvanced,
		Attributes: map[string]string{
			"epoch":           uintToString(e.Epoch),
			"onchainAccrued":  formatAmount(e.OnchainAccrued),
			"offchainAccrued": formatAmount(e.OffchainAccrued),
			"nav":             formatAmount(e.Nav),
		},
	}
}

// FeesClaimed is emitted when an accrued fee pot is drained to the receiver.
type FeesClaimed struct {
	Pot      string
	Amount   *big.Int
	Receiver crypto.Address
}

func (FeesClaimed) EventType() string { return TypeVaultFeesClaimed }

func (e FeesClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultFeesClaimed,
		Attributes: map[string]string{
			"pot":      e.Pot,
			"amount":   formatAmount(e.Amount),
			"receiver": e.Receiver.String(),
		},
	}
}

// ExcessSwept is emitted when untracked reserve balance is swept out of the
// vault address.
type ExcessSwept struct {
	Amount   *big.Int
	Receiver crypto.Address
}

func (ExcessSwept) EventType() string { return TypeVaultExcessSwept }

func (e ExcessSwept) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultExcessSwept,
		Attributes: map[string]string{
			"amount":   formatAmount(e.Amount),
			"receiver": e.Receiver.String(),
		},
	}
}
