// Package backtest replays a strategy's rules over historical bars with a
// single long-only position and summarizes the outcome.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/signal"
	"go.uber.org/zap"
)

// DefaultStartingCapital seeds the equity curve when a config leaves it unset.
const DefaultStartingCapital = 100000.0

// Exit reasons recorded on simulated trades.
const (
	ExitSignal    = "signal"
	ExitEndOfData = "end_of_data"
)

var (
	ErrNoBars        = errors.New("no price bars to backtest")
	ErrUnsortedBars  = errors.New("price bars are not in chronological order")
	ErrInvalidConfig = errors.New("invalid backtest config")
)

// State is the position state of a run.
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Config is everything a single run needs. It is not modified by Run.
type Config struct {
	StartingCapital float64
	RiskPerTrade    float64
	// PositionSize overrides the risk-based size when set.
	PositionSize *float64
	Conditions   signal.Conditions
	Indicators   indicator.Params
	// RiskFreeRate is annual; nil selects DefaultRiskFreeRate.
	RiskFreeRate *float64
	CloseAtEnd   bool
}

// Validate checks the numeric fields of the config.
func (c Config) Validate() error {
	if c.StartingCapital <= 0 {
		return fmt.Errorf("%w: starting capital must be positive", ErrInvalidConfig)
	}
	if c.PositionSize != nil {
		if *c.PositionSize <= 0 {
			return fmt.Errorf("%w: position size must be positive", ErrInvalidConfig)
		}
	} else if c.RiskPerTrade <= 0 || c.RiskPerTrade > 100 {
		return fmt.Errorf("%w: risk per trade must be in (0, 100], got %g", ErrInvalidConfig, c.RiskPerTrade)
	}
	if err := c.Indicators.Validate(); err != nil {
		return err
	}
	return nil
}

// Simulator runs backtests. It holds no per-run state and is safe for concurrent use.
type Simulator struct {
	signals *signal.Generator
	logger  *zap.Logger
}

// NewSimulator creates a new simulator
func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		signals: signal.NewGenerator(logger),
		logger:  logger,
	}
}

type position struct {
	state      State
	entryTime  time.Time
	entryPrice float64
	size       float64
}

// Run walks the bars in order and returns the completed result. Any error
// aborts the run without a partial result.
func (s *Simulator) Run(bars []model.PriceBar, cfg Config) (*model.BacktestResult, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: bar %d at %s", ErrUnsortedBars, i, bars[i].Timestamp)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sets, err := indicator.Compute(model.Closes(bars), cfg.Indicators)
	if err != nil {
		return nil, err
	}

	capital := cfg.StartingCapital
	res := &model.BacktestResult{
		EquityCurve: make([]float64, 0, len(bars)+1),
		Trades:      []model.SimulatedTrade{},
	}
	res.EquityCurve = append(res.EquityCurve, capital)

	var pos position
	for i, bar := range bars {
		set := sets[i]

		if pos.state == Long {
			if s.signals.ShouldExit(cfg.Conditions, set) {
				trade := closePosition(pos, bar, ExitSignal)
				capital += trade.PnL
				res.Trades = append(res.Trades, trade)
				pos = position{}
			}
		} else if s.signals.ShouldEnter(cfg.Conditions, set) {
			size := positionSize(capital, cfg)
			if size > 0 {
				pos = position{state: Long, entryTime: bar.Timestamp, entryPrice: bar.Close, size: size}
			} else {
				s.logger.Debug("Entry skipped, position size is zero",
					zap.Int("bar", i),
					zap.Float64("capital", capital))
			}
		}

		res.EquityCurve = append(res.EquityCurve, capital)
	}

	last := bars[len(bars)-1]
	if pos.state == Long {
		if cfg.CloseAtEnd {
			trade := closePosition(pos, last, ExitEndOfData)
			capital += trade.PnL
			res.Trades = append(res.Trades, trade)
			res.EquityCurve[len(res.EquityCurve)-1] = capital
		} else {
			res.OpenPosition = &model.OpenPosition{
				EntryDate:  pos.entryTime,
				EntryPrice: pos.entryPrice,
				Size:       pos.size,
				LastPrice:  last.Close,
				Unrealized: pos.size * (last.Close - pos.entryPrice),
			}
		}
	}

	rf := DefaultRiskFreeRate
	if cfg.RiskFreeRate != nil {
		rf = *cfg.RiskFreeRate
	}
	Summarize(res, rf)

	s.logger.Debug("Backtest finished",
		zap.Int("bars", len(bars)),
		zap.Int("trades", res.TotalTrades),
		zap.Float64("total_pnl", res.TotalPnL))

	return res, nil
}

func positionSize(capital float64, cfg Config) float64 {
	if cfg.PositionSize != nil {
		return *cfg.PositionSize
	}
	return math.Floor(capital * cfg.RiskPerTrade / 100)
}

func closePosition(pos position, bar model.PriceBar, reason string) model.SimulatedTrade {
	return model.SimulatedTrade{
		EntryDate:  pos.entryTime,
		EntryPrice: pos.entryPrice,
		ExitDate:   bar.Timestamp,
		ExitPrice:  bar.Close,
		Size:       pos.size,
		PnL:        pos.size * (bar.Close - pos.entryPrice),
		ExitReason: reason,
	}
}
