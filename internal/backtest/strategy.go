package backtest

import (
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/signal"
)

// ConfigFromStrategy builds a run config from a stored strategy. A
// non-positive capital selects DefaultStartingCapital.
func ConfigFromStrategy(st *model.Strategy, capital float64, closeAtEnd bool) (Config, error) {
	conds, err := signal.ConditionsFromFlags(st.EntryConditions, st.ExitConditions)
	if err != nil {
		return Config{}, err
	}
	if capital <= 0 {
		capital = DefaultStartingCapital
	}
	return Config{
		StartingCapital: capital,
		RiskPerTrade:    st.RiskPerTrade,
		PositionSize:    st.PositionSize,
		Conditions:      conds,
		Indicators:      st.Indicators.Params(),
		CloseAtEnd:      closeAtEnd,
	}, nil
}
