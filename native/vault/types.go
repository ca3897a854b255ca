package vault

import (
	"math/big"

	"fundvault/crypto"
)

// ActionKind identifies the settlement routine a pending request dispatches
// to when its NAV round trip completes.
type ActionKind uint8

const (
	// ActionDeposit settles a reserve deposit into newly minted shares.
	ActionDeposit ActionKind = iota + 1
	// ActionRedeem settles a share redemption into reserve assets.
	ActionRedeem
	// ActionAdvanceEpoch increments the epoch counter and accrues fees.
	ActionAdvanceEpoch
	// ActionProcessQueue drains the redemption queue head-first.
	ActionProcessQueue
)

func (a ActionKind) String() string {
	switch a {
	case ActionDeposit:
		return "deposit"
	case ActionRedeem:
		return "redeem"
	case ActionAdvanceEpoch:
		return "advanceEpoch"
	case ActionProcessQueue:
		return "processQueue"
	default:
		return "unknown"
	}
}

// PendingRequest is one open NAV round trip. Created when an entry point
// passes synchronous validation, consumed exactly once at fulfillment.
type PendingRequest struct {
	Investor crypto.Address
	Amount   *big.Int
	Action   ActionKind
}

// Copy returns a deep copy of the request.
func (r *PendingRequest) Copy() *PendingRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	return &clone
}

// QueueEntry is one unpaid redemption remainder awaiting liquidity. The
// shares it names are escrowed at the vault address until the entry is paid.
type QueueEntry struct {
	Investor        crypto.Address
	Shares          *big.Int
	OriginRequestID [32]byte
}

// Copy returns a deep copy of the entry.
func (e *QueueEntry) Copy() *QueueEntry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Shares != nil {
		clone.Shares = new(big.Int).Set(e.Shares)
	}
	return &clone
}

// VaultState is the single mutable record owned by the engine. It is loaded
// at the top of every settlement routine and stored back before the call
// returns; nothing else writes it.
type VaultState struct {
	// LatestOffchainNav is the externally reported value of off-chain
	// holdings, refreshed by every fulfillment.
	LatestOffchainNav *big.Int
	// TotalReserveHeld counts the reserve units the vault has taken in
	// through settlement. Donations sent directly to the vault address are
	// not counted and stay sweepable.
	TotalReserveHeld   *big.Int
	OnchainFeeAccrued  *big.Int
	OffchainFeeAccrued *big.Int
	Epoch              uint64
	MinTxFee           *big.Int
	// RequestNonce feeds request-id derivation; it only ever grows.
	RequestNonce uint64
}

// NewVaultState returns a zeroed state with all amounts initialised.
func NewVaultState() *VaultState {
	return &VaultState{
		LatestOffchainNav:  big.NewInt(0),
		TotalReserveHeld:   big.NewInt(0),
		OnchainFeeAccrued:  big.NewInt(0),
		OffchainFeeAccrued: big.NewInt(0),
		MinTxFee:           big.NewInt(0),
	}
}

func (s *VaultState) normalise() {
	if s.LatestOffchainNav == nil {
		s.LatestOffchainNav = big.NewInt(0)
	}
	if s.TotalReserveHeld == nil {
		s.TotalReserveHeld = big.NewInt(0)
	}
	if s.OnchainFeeAccrued == nil {
		s.OnchainFeeAccrued = big.NewInt(0)
	}
	if s.OffchainFeeAccrued == nil {
		s.OffchainFeeAccrued = big.NewInt(0)
	}
	if s.MinTxFee == nil {
		s.MinTxFee = big.NewInt(0)
	}
}

// Copy returns a deep copy of the state.
func (s *VaultState) Copy() *VaultState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.normalise()
	clone.LatestOffchainNav = new(big.Int).Set(s.LatestOffchainNav)
	clone.TotalReserveHeld = new(big.Int).Set(s.TotalReserveHeld)
	clone.OnchainFeeAccrued = new(big.Int).Set(s.OnchainFeeAccrued)
	clone.OffchainFeeAccrued = new(big.Int).Set(s.OffchainFeeAccrued)
	clone.MinTxFee = new(big.Int).Set(s.MinTxFee)
	return &clone
}

// VaultNetAssets is the on-hand reserve net of both unclaimed fee pots,
// clamped at zero.
func (s *VaultState) VaultNetAssets() *big.Int {
	s.normalise()
	net := new(big.Int).Sub(s.TotalReserveHeld, s.OnchainFeeAccrued)
	net.Sub(net, s.OffchainFeeAccrued)
	if net.Sign() < 0 {
		return big.NewInt(0)
	}
	return net
}

// CombinedNetAssets adds the latest reported NAV to the on-hand net assets;
// it is the basis for all share pricing.
func (s *VaultState) CombinedNetAssets() *big.Int {
	s.normalise()
	return new(big.Int).Add(s.VaultNetAssets(), s.LatestOffchainNav)
}

// EpochFlow accumulates one investor's gross deposit and withdrawal volume
// within a single epoch. Past epochs are immutable history.
type EpochFlow struct {
	DepositAmount  *big.Int
	WithdrawAmount *big.Int
}

// NewEpochFlow returns a zeroed flow record.
func NewEpochFlow() *EpochFlow {
	return &EpochFlow{DepositAmount: big.NewInt(0), WithdrawAmount: big.NewInt(0)}
}

func (f *EpochFlow) normalise() {
	if f.DepositAmount == nil {
		f.DepositAmount = big.NewInt(0)
	}
	if f.WithdrawAmount == nil {
		f.WithdrawAmount = big.NewInt(0)
	}
}

// Copy returns a deep copy of the flow record.
func (f *EpochFlow) Copy() *EpochFlow {
	if f == nil {
		return nil
	}
	clone := NewEpochFlow()
	f.normalise()
	clone.DepositAmount.Set(f.DepositAmount)
	clone.WithdrawAmount.Set(f.WithdrawAmount)
	return clone
}
