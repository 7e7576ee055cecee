package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the side of an order
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Opposite returns the side that closes a position opened on t
func (t TradeType) Opposite() TradeType {
	if t == TradeTypeBuy {
		return TradeTypeSell
	}
	return TradeTypeBuy
}

// TradeStatus is the execution state of an order
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusExecuted  TradeStatus = "EXECUTED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
	TradeStatusFailed    TradeStatus = "FAILED"
)

// Trade represents an order placed through the broker
type Trade struct {
	ID            int                 `json:"id" db:"id"`
	UserID        int                 `json:"user_id" db:"user_id"`
	PortfolioID   int                 `json:"portfolio_id" db:"portfolio_id"`
	StrategyID    *int                `json:"strategy_id,omitempty" db:"strategy_id"`
	Symbol        string              `json:"symbol" db:"symbol"`
	Exchange      string              `json:"exchange" db:"exchange"`
	TradeType     TradeType           `json:"trade_type" db:"trade_type"`
	OrderType     string              `json:"order_type" db:"order_type"`
	Product       string              `json:"product" db:"product"`
	Quantity      int                 `json:"quantity" db:"quantity"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	TotalAmount   decimal.Decimal     `json:"total_amount" db:"total_amount"`
	Status        TradeStatus         `json:"status" db:"status"`
	OrderID       *string             `json:"order_id,omitempty" db:"order_id"`
	StopLoss      decimal.NullDecimal `json:"stop_loss" db:"stop_loss"`
	Target        decimal.NullDecimal `json:"target" db:"target"`
	PnL           decimal.NullDecimal `json:"pnl" db:"pnl"`
	Notes         *string             `json:"notes,omitempty" db:"notes"`
	EntryTime     time.Time           `json:"entry_time" db:"entry_time"`
	ExecutionTime *time.Time          `json:"execution_time,omitempty" db:"execution_time"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

// OrderRequest represents a request to place an order
type OrderRequest struct {
	PortfolioID int              `json:"portfolio_id" binding:"required"`
	StrategyID  *int             `json:"strategy_id"`
	Symbol      string           `json:"symbol" binding:"required"`
	Exchange    string           `json:"exchange"`
	TradeType   TradeType        `json:"trade_type" binding:"required,oneof=BUY SELL"`
	OrderType   string           `json:"order_type" binding:"omitempty,oneof=MARKET LIMIT SL SL-M"`
	Product     string           `json:"product" binding:"omitempty,oneof=CNC MIS NRML"`
	Quantity    int              `json:"quantity" binding:"required,gt=0"`
	Price       decimal.Decimal  `json:"price"`
	StopLoss    *decimal.Decimal `json:"stop_loss"`
	Target      *decimal.Decimal `json:"target"`
	Notes       *string          `json:"notes"`
}

// OrderEvent is published when an order changes state
type OrderEvent struct {
	TradeID   int             `json:"trade_id"`
	UserID    int             `json:"user_id"`
	Symbol    string          `json:"symbol"`
	TradeType TradeType       `json:"trade_type"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Status    TradeStatus     `json:"status"`
	OrderID   string          `json:"order_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
