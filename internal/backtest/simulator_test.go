package backtest_test

import (
	"testing"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/backtest"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barsFromCloses(closes ...float64) []model.PriceBar {
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			Timestamp: day0.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func crossoverConfig(exit ...signal.Rule) backtest.Config {
	params := indicator.DefaultParams()
	params.FastWindow, params.SlowWindow = 2, 4
	return backtest.Config{
		StartingCapital: backtest.DefaultStartingCapital,
		RiskPerTrade:    1,
		Conditions: signal.Conditions{
			Entry: []signal.Rule{signal.SMACrossover},
			Exit:  exit,
		},
		Indicators: params,
	}
}

func TestRun_CrossoverExample(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 10, 10, 12, 14, 16, 18, 20)
	sim := backtest.NewSimulator(zap.NewNop())

	// the crossover fires on exactly one bar
	cfg := crossoverConfig(signal.SMACrossunder)
	sets, err := indicator.Compute(model.Closes(bars), cfg.Indicators)
	require.NoError(t, err)
	var fired []int
	for i, s := range sets {
		if signal.SMACrossover.Evaluate(s) {
			fired = append(fired, i)
		}
	}
	assert.Equal(t, []int{5}, fired)

	cfg.CloseAtEnd = true
	res, err := sim.Run(bars, cfg)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, bars[5].Timestamp, trade.EntryDate)
	assert.Equal(t, 12.0, trade.EntryPrice)
	assert.Equal(t, 1000.0, trade.Size)
	assert.Equal(t, bars[9].Timestamp, trade.ExitDate)
	assert.Equal(t, backtest.ExitEndOfData, trade.ExitReason)
	assert.InDelta(t, 8000.0, trade.PnL, 1e-9)

	assert.Len(t, res.EquityCurve, len(bars)+1)
	assert.InDelta(t, 108000.0, res.EquityCurve[len(bars)], 1e-9)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Nil(t, res.OpenPosition)
}

func TestRun_CrossoverWithoutExitRulesClosesNextBar(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 10, 10, 12, 14, 16, 18, 20)
	res, err := backtest.NewSimulator(zap.NewNop()).Run(bars, crossoverConfig())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, bars[5].Timestamp, res.Trades[0].EntryDate)
	assert.Equal(t, bars[6].Timestamp, res.Trades[0].ExitDate)
	assert.InDelta(t, 2000.0, res.Trades[0].PnL, 1e-9)
	assert.InDelta(t, 102000.0, res.FinalCapital, 1e-9)
}

func TestRun_OpenPositionReportedWhenNotClosedAtEnd(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 10, 10, 12, 14, 16, 18, 20)
	res, err := backtest.NewSimulator(zap.NewNop()).Run(bars, crossoverConfig(signal.SMACrossunder))
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.NotNil(t, res.OpenPosition)
	assert.Equal(t, 12.0, res.OpenPosition.EntryPrice)
	assert.InDelta(t, 8000.0, res.OpenPosition.Unrealized, 1e-9)
	for _, e := range res.EquityCurve {
		assert.Equal(t, backtest.DefaultStartingCapital, e)
	}
}

func TestRun_ExitCheckedBeforeEntryAndPositionsNeverOverlap(t *testing.T) {
	bars := barsFromCloses(100, 101, 102, 103, 104, 105, 106)
	cfg := backtest.Config{
		StartingCapital: 1000,
		RiskPerTrade:    10,
		Indicators:      indicator.DefaultParams(),
	}

	res, err := backtest.NewSimulator(zap.NewNop()).Run(bars, cfg)
	require.NoError(t, err)

	// empty rule lists: enter on 0, exit on 1, enter on 2, ...
	require.Len(t, res.Trades, 3)
	for i, tr := range res.Trades {
		assert.True(t, tr.ExitDate.After(tr.EntryDate), "trade %d", i)
		if i > 0 {
			assert.True(t, tr.EntryDate.After(res.Trades[i-1].ExitDate), "trade %d overlaps", i)
		}
	}
	assert.Len(t, res.EquityCurve, len(bars)+1)
	require.NotNil(t, res.OpenPosition)
}

func TestRun_EquityCurveLength(t *testing.T) {
	for _, n := range []int{1, 2, 15, 60} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 50 + float64(i%7)
		}
		cfg := backtest.Config{
			StartingCapital: 5000,
			RiskPerTrade:    2,
			Conditions:      signal.Conditions{Entry: []signal.Rule{signal.RSIOversold}, Exit: []signal.Rule{signal.RSIOverbought}},
			Indicators:      indicator.DefaultParams(),
		}
		res, err := backtest.NewSimulator(zap.NewNop()).Run(barsFromCloses(closes...), cfg)
		require.NoError(t, err)
		assert.Len(t, res.EquityCurve, n+1, "bars=%d", n)
		assert.Equal(t, 5000.0, res.EquityCurve[0])
	}
}

func TestRun_FixedPositionSize(t *testing.T) {
	size := 3.0
	cfg := crossoverConfig()
	cfg.PositionSize = &size

	res, err := backtest.NewSimulator(zap.NewNop()).Run(barsFromCloses(10, 10, 10, 10, 10, 12, 14), cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 3.0, res.Trades[0].Size)
	assert.InDelta(t, 6.0, res.TotalPnL, 1e-9)
}

func TestRun_ZeroSizeDoesNotOpen(t *testing.T) {
	cfg := backtest.Config{StartingCapital: 50, RiskPerTrade: 1, Indicators: indicator.DefaultParams()}

	res, err := backtest.NewSimulator(zap.NewNop()).Run(barsFromCloses(10, 11, 12), cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Nil(t, res.OpenPosition)
}

func TestRun_InputErrors(t *testing.T) {
	sim := backtest.NewSimulator(zap.NewNop())

	_, err := sim.Run(nil, crossoverConfig())
	assert.ErrorIs(t, err, backtest.ErrNoBars)

	bars := barsFromCloses(1, 2, 3)
	bars[1], bars[2] = bars[2], bars[1]
	_, err = sim.Run(bars, crossoverConfig())
	assert.ErrorIs(t, err, backtest.ErrUnsortedBars)

	cfg := crossoverConfig()
	cfg.RiskPerTrade = 0
	_, err = sim.Run(barsFromCloses(1, 2, 3), cfg)
	assert.ErrorIs(t, err, backtest.ErrInvalidConfig)

	cfg = crossoverConfig()
	cfg.Indicators.SlowWindow = 1
	_, err = sim.Run(barsFromCloses(1, 2, 3), cfg)
	assert.ErrorIs(t, err, indicator.ErrInvalidParams)
}

func TestConfigFromStrategy(t *testing.T) {
	st := &model.Strategy{
		EntryConditions: model.Conditions{"rsi_oversold": true},
		ExitConditions:  model.Conditions{"rsi_overbought": true, "bollinger_breakdown": false},
		RiskPerTrade:    2,
		Indicators:      model.IndicatorSettings{FastWindow: 5, SlowWindow: 15},
	}

	cfg, err := backtest.ConfigFromStrategy(st, 0, true)
	require.NoError(t, err)
	assert.Equal(t, backtest.DefaultStartingCapital, cfg.StartingCapital)
	assert.Equal(t, []signal.Rule{signal.RSIOversold}, cfg.Conditions.Entry)
	assert.Equal(t, []signal.Rule{signal.RSIOverbought}, cfg.Conditions.Exit)
	assert.Equal(t, 5, cfg.Indicators.FastWindow)
	assert.Equal(t, 20, cfg.Indicators.SMAWindow)
	assert.True(t, cfg.CloseAtEnd)

	st.EntryConditions = model.Conditions{"sma_crossunder": true}
	_, err = backtest.ConfigFromStrategy(st, 0, false)
	assert.ErrorIs(t, err, signal.ErrWrongSide)
}

func TestRun_ExplicitZeroRiskFreeRate(t *testing.T) {
	bars := barsFromCloses(100, 101, 103, 102, 105, 104, 108)
	cfg := backtest.Config{StartingCapital: 1000, RiskPerTrade: 10, Indicators: indicator.DefaultParams()}
	sim := backtest.NewSimulator(zap.NewNop())

	withDefault, err := sim.Run(bars, cfg)
	require.NoError(t, err)

	zero := 0.0
	cfg.RiskFreeRate = &zero
	withZero, err := sim.Run(bars, cfg)
	require.NoError(t, err)

	require.NotNil(t, withDefault.SharpeRatio)
	require.NotNil(t, withZero.SharpeRatio)
	want, ok := backtest.SharpeRatio(withZero.EquityCurve, 0).Get()
	require.True(t, ok)
	assert.InDelta(t, want, *withZero.SharpeRatio, 1e-12)
	assert.Greater(t, *withZero.SharpeRatio, *withDefault.SharpeRatio)
}
