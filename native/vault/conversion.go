package vault

import "math/big"

// Share/asset conversion against combined net assets. All downward
// divisions floor; the floor direction decides who absorbs truncation dust
// and must not change. The empty vault (zero supply) converts 1:1 in both
// directions, as does a zero input.

func convertToShares(assets, totalShares, combinedNetAssets *big.Int) *big.Int {
	if assets == nil || assets.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalShares.Sign() == 0 || combinedNetAssets.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	shares := new(big.Int).Mul(assets, totalShares)
	return shares.Quo(shares, combinedNetAssets)
}

func convertToAssets(shares, totalShares, combinedNetAssets *big.Int) *big.Int {
	if shares == nil || shares.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalShares.Sign() == 0 || combinedNetAssets.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	assets := new(big.Int).Mul(shares, combinedNetAssets)
	return assets.Quo(assets, totalShares)
}

// sharesForAssets is the rounding-up direction: the share count needed to
// extract the given assets. Used only when a redemption settles partially,
// so the investor is never charged more shares than the paid assets are
// worth.
func sharesForAssets(assets, totalShares, combinedNetAssets *big.Int) *big.Int {
	if assets == nil || assets.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalShares.Sign() == 0 || combinedNetAssets.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	numerator := new(big.Int).Mul(assets, totalShares)
	shares, remainder := new(big.Int).QuoRem(numerator, combinedNetAssets, new(big.Int))
	if remainder.Sign() != 0 {
		shares.Add(shares, big.NewInt(1))
	}
	return shares
}
