package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
)

// Conditions maps a rule name to whether it is enabled
type Conditions map[string]bool

// Value implements the driver.Valuer interface for Conditions
func (c Conditions) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for Conditions
func (c *Conditions) Scan(value interface{}) error {
	b, ok := asBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, c)
}

// IndicatorSettings stores the indicator windows a strategy evaluates with
type IndicatorSettings indicator.Params

// Value implements the driver.Valuer interface for IndicatorSettings
func (s IndicatorSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for IndicatorSettings
func (s *IndicatorSettings) Scan(value interface{}) error {
	b, ok := asBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, s)
}

// Params converts the settings to indicator parameters with defaults applied
func (s IndicatorSettings) Params() indicator.Params {
	return indicator.Params(s).WithDefaults()
}

// Strategy represents a user's trading strategy
type Strategy struct {
	ID              int               `json:"id" db:"id"`
	UserID          int               `json:"user_id" db:"user_id"`
	Name            string            `json:"name" db:"name"`
	Description     *string           `json:"description,omitempty" db:"description"`
	EntryConditions Conditions        `json:"entry_conditions" db:"entry_conditions"`
	ExitConditions  Conditions        `json:"exit_conditions" db:"exit_conditions"`
	RiskPerTrade    float64           `json:"risk_per_trade" db:"risk_per_trade"`
	PositionSize    *float64          `json:"position_size,omitempty" db:"position_size"`
	Indicators      IndicatorSettings `json:"indicators" db:"indicators"`

	TotalTrades   int      `json:"total_trades" db:"total_trades"`
	WinningTrades int      `json:"winning_trades" db:"winning_trades"`
	LosingTrades  int      `json:"losing_trades" db:"losing_trades"`
	TotalPnL      float64  `json:"total_pnl" db:"total_pnl"`
	MaxDrawdown   float64  `json:"max_drawdown" db:"max_drawdown"`
	SharpeRatio   *float64 `json:"sharpe_ratio" db:"sharpe_ratio"`

	IsActive        bool            `json:"is_active" db:"is_active"`
	IsAutomated     bool            `json:"is_automated" db:"is_automated"`
	LastExecution   *time.Time      `json:"last_execution,omitempty" db:"last_execution"`
	BacktestResults *BacktestResult `json:"backtest_results,omitempty" db:"backtest_results"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// StrategyCreate represents data for creating a new strategy
type StrategyCreate struct {
	Name            string             `json:"name" binding:"required,min=3,max=100"`
	Description     *string            `json:"description"`
	EntryConditions Conditions         `json:"entry_conditions"`
	ExitConditions  Conditions         `json:"exit_conditions"`
	RiskPerTrade    float64            `json:"risk_per_trade" binding:"required"`
	PositionSize    *float64           `json:"position_size"`
	Indicators      *IndicatorSettings `json:"indicators"`
	IsAutomated     bool               `json:"is_automated"`
}

// StrategyUpdate represents data for updating a strategy
type StrategyUpdate struct {
	Name            *string            `json:"name" binding:"omitempty,min=3,max=100"`
	Description     *string            `json:"description"`
	EntryConditions Conditions         `json:"entry_conditions"`
	ExitConditions  Conditions         `json:"exit_conditions"`
	RiskPerTrade    *float64           `json:"risk_per_trade"`
	PositionSize    *float64           `json:"position_size"`
	Indicators      *IndicatorSettings `json:"indicators"`
	IsActive        *bool              `json:"is_active"`
	IsAutomated     *bool              `json:"is_automated"`
}

func asBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}
