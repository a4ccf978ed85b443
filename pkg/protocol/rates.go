package protocol

import "math/big"

// Native rate representations vary per protocol family: Aave-style pools
// report a ray-scaled (1e27) annual rate, Compound-style markets a 1e18
// per-second rate, cToken forks a 1e18 per-block rate, and some resolvers
// an annual fraction in wad (1e18). Everything is normalized to basis
// points per year.

const (
	secondsPerYear = 31_536_000
	bpsPerUnit     = 10_000
)

var (
	ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// RayToBps converts a ray-scaled annual rate (Aave liquidityRate) to basis
// points per year.
func RayToBps(rate *big.Int) int64 {
	out := new(big.Int).Mul(rate, big.NewInt(bpsPerUnit))
	return out.Div(out, ray).Int64()
}

// WadPerSecondToBps converts a 1e18-scaled per-second supply rate
// (Compound V3 getSupplyRate) to basis points per year. Simple
// annualization, no compounding: the scoring collaborator works in APR
// terms.
func WadPerSecondToBps(rate *big.Int) int64 {
	out := new(big.Int).Mul(rate, big.NewInt(secondsPerYear*bpsPerUnit))
	return out.Div(out, wad).Int64()
}

// WadPerBlockToBps converts a 1e18-scaled per-block supply rate (cToken
// supplyRatePerBlock) to basis points per year given the chain's block
// cadence.
func WadPerBlockToBps(rate *big.Int, blocksPerYear int64) int64 {
	out := new(big.Int).Mul(rate, big.NewInt(blocksPerYear))
	out.Mul(out, big.NewInt(bpsPerUnit))
	return out.Div(out, wad).Int64()
}

// WadFractionToBps converts a 1e18-scaled annual fraction (Silo lens
// deposit APR) to basis points per year.
func WadFractionToBps(rate *big.Int) int64 {
	out := new(big.Int).Mul(rate, big.NewInt(bpsPerUnit))
	return out.Div(out, wad).Int64()
}
