package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RiskMetrics summarizes the exposure of a portfolio's open positions
type RiskMetrics struct {
	TotalExposure   decimal.Decimal `json:"total_exposure"`
	LargestPosition decimal.Decimal `json:"largest_position"`
	PositionCount   int             `json:"position_count"`
	Concentration   decimal.Decimal `json:"concentration"`
}

// Value implements the driver.Valuer interface for RiskMetrics
func (m RiskMetrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for RiskMetrics
func (m *RiskMetrics) Scan(value interface{}) error {
	b, ok := asBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, m)
}

// Portfolio represents a user's portfolio
type Portfolio struct {
	ID            int             `json:"id" db:"id"`
	UserID        int             `json:"user_id" db:"user_id"`
	Name          string          `json:"name" db:"name"`
	Description   *string         `json:"description,omitempty" db:"description"`
	TotalValue    decimal.Decimal `json:"total_value" db:"total_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	RiskMetrics   *RiskMetrics    `json:"risk_metrics,omitempty" db:"risk_metrics"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// PortfolioCreate represents data for creating a portfolio
type PortfolioCreate struct {
	Name        string  `json:"name" binding:"required,min=1,max=100"`
	Description *string `json:"description"`
}

// Position is a broker-reported holding or open position
type Position struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Product       string          `json:"product,omitempty"`
	Quantity      int             `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	Value         decimal.Decimal `json:"value"`
	Unrealized    decimal.Decimal `json:"unrealised"`
	Realized      decimal.Decimal `json:"realised"`
}
