package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// BacktestStatus represents the lifecycle state of a persisted backtest
type BacktestStatus string

const (
	BacktestStatusPending   BacktestStatus = "pending"
	BacktestStatusRunning   BacktestStatus = "running"
	BacktestStatusCompleted BacktestStatus = "completed"
	BacktestStatusFailed    BacktestStatus = "failed"
)

// SimulatedTrade is one closed round trip produced by the simulator
type SimulatedTrade struct {
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"position"`
	PnL        float64   `json:"pnl"`
	ExitReason string    `json:"exit_reason"`
}

// OpenPosition is a position still held when the bar sequence ended
type OpenPosition struct {
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"position"`
	LastPrice  float64   `json:"last_price"`
	Unrealized float64   `json:"unrealized_pnl"`
}

// BacktestResult is the output of one simulator run
type BacktestResult struct {
	TotalTrades    int              `json:"total_trades"`
	WinningTrades  int              `json:"winning_trades"`
	LosingTrades   int              `json:"losing_trades"`
	TotalPnL       float64          `json:"total_pnl"`
	InitialCapital float64          `json:"initial_capital"`
	FinalCapital   float64          `json:"final_capital"`
	TotalReturn    float64          `json:"total_return"`
	MaxDrawdown    float64          `json:"max_drawdown"`
	SharpeRatio    *float64         `json:"sharpe_ratio"`
	EquityCurve    []float64        `json:"equity_curve"`
	Trades         []SimulatedTrade `json:"trades"`
	OpenPosition   *OpenPosition    `json:"open_position,omitempty"`
}

// Value implements the driver.Valuer interface for BacktestResult
func (r BacktestResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements the sql.Scanner interface for BacktestResult
func (r *BacktestResult) Scan(value interface{}) error {
	b, ok := asBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, r)
}

// Backtest represents a persisted backtest run
type Backtest struct {
	ID              int             `json:"id" db:"id"`
	UserID          int             `json:"user_id" db:"user_id"`
	StrategyID      int             `json:"strategy_id" db:"strategy_id"`
	InstrumentToken int64           `json:"instrument_token" db:"instrument_token"`
	Symbol          string          `json:"symbol" db:"symbol"`
	Interval        string          `json:"interval" db:"interval"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	EndDate         time.Time       `json:"end_date" db:"end_date"`
	InitialCapital  float64         `json:"initial_capital" db:"initial_capital"`
	Status          BacktestStatus  `json:"status" db:"status"`
	Results         *BacktestResult `json:"results,omitempty" db:"results"`
	ErrorMessage    *string         `json:"error_message,omitempty" db:"error_message"`
	ReportKey       *string         `json:"-" db:"report_key"`
	ReportURL       *string         `json:"report_url,omitempty" db:"report_url"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// BacktestRequest represents a request to backtest a stored strategy
type BacktestRequest struct {
	InstrumentToken int64     `json:"instrument_token" binding:"required"`
	Symbol          string    `json:"symbol"`
	Interval        string    `json:"interval"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date"`
	InitialCapital  float64   `json:"initial_capital" binding:"omitempty,gt=0"`
	CloseAtEnd      bool      `json:"close_at_end"`
}

// CrossoverRequest represents a synchronous fast/slow SMA crossover run
type CrossoverRequest struct {
	InstrumentToken int64     `json:"instrument_token" binding:"required"`
	Interval        string    `json:"interval"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date"`
	ShortWindow     int       `json:"short_window" binding:"omitempty,min=1"`
	LongWindow      int       `json:"long_window" binding:"omitempty,min=2"`
	RiskPerTrade    float64   `json:"risk_per_trade" binding:"omitempty,gt=0,lte=100"`
	InitialCapital  float64   `json:"initial_capital" binding:"omitempty,gt=0"`
}

// BacktestEvent is published when a backtest reaches a terminal state
type BacktestEvent struct {
	BacktestID  int            `json:"backtest_id"`
	StrategyID  int            `json:"strategy_id"`
	UserID      int            `json:"user_id"`
	Status      BacktestStatus `json:"status"`
	TotalTrades int            `json:"total_trades,omitempty"`
	TotalPnL    float64        `json:"total_pnl,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
