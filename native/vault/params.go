package vault

import (
	"errors"
	"math/big"
)

// ReserveDecimals is the fixed-point scale of every amount the vault
// accounts in: reserve units, shares and reported NAV all carry six
// decimals.
const ReserveDecimals uint8 = 6

var (
	basisPoints = big.NewInt(10_000)
	// feeAccrualDivisor folds the bps scale together with the flat /365
	// divisor applied on every epoch advance. The divisor assumes one
	// advance per calendar day and is deliberately not elapsed-time
	// weighted.
	feeAccrualDivisor = big.NewInt(365 * 10_000)
)

// Params carries the vault's economic configuration. Rates are basis
// points; amounts are reserve units at ReserveDecimals.
type Params struct {
	FeeRateBps      uint64
	OnchainRateBps  uint64
	OffchainRateBps uint64

	MinDeposit          *big.Int
	MinInitialDeposit   *big.Int
	MaxDepositPerEpoch  *big.Int
	MinWithdraw         *big.Int
	MaxWithdrawPerEpoch *big.Int
}

// DefaultParams returns permissive parameters suitable for tests.
func DefaultParams() Params {
	return Params{
		MinDeposit:          big.NewInt(0),
		MinInitialDeposit:   big.NewInt(0),
		MaxDepositPerEpoch:  nil,
		MinWithdraw:         big.NewInt(0),
		MaxWithdrawPerEpoch: nil,
	}
}

// Normalise fills nil minimums with zero. A nil epoch cap means unbounded.
func (p Params) Normalise() Params {
	out := p
	if out.MinDeposit == nil {
		out.MinDeposit = big.NewInt(0)
	}
	if out.MinInitialDeposit == nil {
		out.MinInitialDeposit = big.NewInt(0)
	}
	if out.MinWithdraw == nil {
		out.MinWithdraw = big.NewInt(0)
	}
	return out
}

// Validate rejects negative amounts and rates above 100%.
func (p Params) Validate() error {
	if p.FeeRateBps > 10_000 {
		return errors.New("vault params: fee rate exceeds 100%")
	}
	if p.OnchainRateBps > 10_000 || p.OffchainRateBps > 10_000 {
		return errors.New("vault params: management rate exceeds 100%")
	}
	for _, amount := range []*big.Int{p.MinDeposit, p.MinInitialDeposit, p.MaxDepositPerEpoch, p.MinWithdraw, p.MaxWithdrawPerEpoch} {
		if amount != nil && amount.Sign() < 0 {
			return errors.New("vault params: amounts must be non-negative")
		}
	}
	return nil
}
