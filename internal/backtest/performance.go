package backtest

import (
	"math"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
)

const (
	// TradingDaysPerYear annualizes daily returns.
	TradingDaysPerYear = 252
	// DefaultRiskFreeRate is the annual rate subtracted from returns.
	DefaultRiskFreeRate = 0.02
)

// MaxDrawdown returns the deepest fall from a running peak as a percentage
// (zero or negative). Points where the running peak is not positive are skipped.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		if dd := (e - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

// SharpeRatio annualizes the mean excess daily return over its sample
// standard deviation. It is absent for fewer than two returns, zero
// variance, or returns that are not finite.
func SharpeRatio(equity []float64, annualRiskFree float64) indicator.Value {
	if len(equity) < 3 {
		return indicator.None()
	}
	daily := annualRiskFree / TradingDaysPerYear

	excess := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		r := equity[i]/equity[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return indicator.None()
		}
		excess = append(excess, r-daily)
	}

	n := float64(len(excess))
	var mean float64
	for _, x := range excess {
		mean += x
	}
	mean /= n

	var ss float64
	for _, x := range excess {
		d := x - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / (n - 1))
	if sd < 1e-12 {
		return indicator.None()
	}
	return indicator.Some(math.Sqrt(TradingDaysPerYear) * mean / sd)
}

// Summarize fills the statistics of a result from its trades and equity curve.
func Summarize(res *model.BacktestResult, riskFree float64) {
	res.TotalTrades = len(res.Trades)
	res.WinningTrades, res.LosingTrades = 0, 0
	res.TotalPnL = 0
	for _, t := range res.Trades {
		switch {
		case t.PnL > 0:
			res.WinningTrades++
		case t.PnL < 0:
			res.LosingTrades++
		}
		res.TotalPnL += t.PnL
	}

	if n := len(res.EquityCurve); n > 0 {
		res.InitialCapital = res.EquityCurve[0]
		res.FinalCapital = res.EquityCurve[n-1]
		if res.InitialCapital != 0 {
			res.TotalReturn = (res.FinalCapital - res.InitialCapital) / res.InitialCapital * 100
		}
	}
	res.MaxDrawdown = MaxDrawdown(res.EquityCurve)
	res.SharpeRatio = SharpeRatio(res.EquityCurve, riskFree).Ptr()
}
