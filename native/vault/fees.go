package vault

import "math/big"

// depositFee computes max(minTxFee, amount * feeRateBps / 10_000).
func depositFee(amount, minTxFee *big.Int, feeRateBps uint64) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeRateBps))
	fee.Quo(fee, basisPoints)
	if minTxFee != nil && fee.Cmp(minTxFee) < 0 {
		fee = new(big.Int).Set(minTxFee)
	}
	return fee
}

// accrualAmount computes base * rateBps / (365 * 10_000), the flat
// per-advance accrual applied to each fee pot.
func accrualAmount(base *big.Int, rateBps uint64) *big.Int {
	if base == nil || base.Sign() <= 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	accrued := new(big.Int).Mul(base, new(big.Int).SetUint64(rateBps))
	return accrued.Quo(accrued, feeAccrualDivisor)
}

// clampClaim bounds a requested claim to the available pot. Over-asking
// clamps rather than erroring.
func clampClaim(requested, pot *big.Int) *big.Int {
	if requested == nil || requested.Sign() <= 0 || pot == nil || pot.Sign() <= 0 {
		return big.NewInt(0)
	}
	if requested.Cmp(pot) > 0 {
		return new(big.Int).Set(pot)
	}
	return new(big.Int).Set(requested)
}
