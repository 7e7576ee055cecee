package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/events"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/validator"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Default order fields applied when a request leaves them empty.
const (
	DefaultOrderType = "MARKET"
	DefaultProduct   = "CNC"
)

// Broker is the subset of the Kite client used for trading.
type Broker interface {
	LTP(ctx context.Context, s client.Session, instruments ...string) (map[string]decimal.Decimal, error)
	Holdings(ctx context.Context, s client.Session) ([]model.Position, error)
	Positions(ctx context.Context, s client.Session) ([]model.Position, error)
	PlaceOrder(ctx context.Context, s client.Session, p client.OrderParams) (string, error)
	CancelOrder(ctx context.Context, s client.Session, orderID string) error
}

// PortfolioStore persists portfolios.
type PortfolioStore interface {
	Create(ctx context.Context, userID int, req *model.PortfolioCreate) (int, error)
	GetByID(ctx context.Context, id int) (*model.Portfolio, error)
	ListByUser(ctx context.Context, userID int) ([]model.Portfolio, error)
	UpdateValuation(ctx context.Context, p *model.Portfolio) error
}

// TradeStore persists trades.
type TradeStore interface {
	Create(ctx context.Context, t *model.Trade) (int, error)
	GetByID(ctx context.Context, id int) (*model.Trade, error)
	ListByUser(ctx context.Context, userID int, statuses []model.TradeStatus, limit, offset int) ([]model.Trade, int, error)
	UpdateStatus(ctx context.Context, id int, status model.TradeStatus, orderID *string, executedAt *time.Time) error
	SetPnL(ctx context.Context, id int, pnl decimal.Decimal) error
}

// TradingService places orders through the broker and keeps portfolios in sync
type TradingService struct {
	broker     Broker
	portfolios PortfolioStore
	trades     TradeStore
	sessions   SessionResolver
	publisher  events.Publisher
	topic      string
	exchange   string
	now        func() time.Time
	logger     *zap.Logger
}

// NewTradingService creates a new trading service
func NewTradingService(
	broker Broker,
	portfolios PortfolioStore,
	trades TradeStore,
	sessions SessionResolver,
	publisher events.Publisher,
	topic string,
	exchange string,
	logger *zap.Logger,
) *TradingService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if exchange == "" {
		exchange = "NSE"
	}
	return &TradingService{
		broker:     broker,
		portfolios: portfolios,
		trades:     trades,
		sessions:   sessions,
		publisher:  publisher,
		topic:      topic,
		exchange:   exchange,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// CreatePortfolio creates an empty portfolio
func (s *TradingService) CreatePortfolio(ctx context.Context, userID int, req *model.PortfolioCreate) (*model.Portfolio, error) {
	id, err := s.portfolios.Create(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	return s.portfolios.GetByID(ctx, id)
}

// ListPortfolios returns the user's portfolios
func (s *TradingService) ListPortfolios(ctx context.Context, userID int) ([]model.Portfolio, error) {
	return s.portfolios.ListByUser(ctx, userID)
}

// GetPortfolio returns a portfolio owned by userID
func (s *TradingService) GetPortfolio(ctx context.Context, userID, id int) (*model.Portfolio, error) {
	p, err := s.portfolios.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("portfolio %w", ErrNotFound)
	}
	if p.UserID != userID {
		return nil, ErrAccessDenied
	}
	return p, nil
}

// RefreshPortfolio recomputes the portfolio value and risk metrics from the
// broker's positions and holdings.
func (s *TradingService) RefreshPortfolio(ctx context.Context, userID, id int) (*model.Portfolio, error) {
	p, err := s.GetPortfolio(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	positions, err := s.broker.Positions(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}
	holdings, err := s.broker.Holdings(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holdings: %w", err)
	}
	all := append(positions, holdings...)

	p.TotalValue, p.UnrealizedPnL, p.RealizedPnL = decimal.Zero, decimal.Zero, decimal.Zero
	for _, pos := range all {
		p.TotalValue = p.TotalValue.Add(pos.Value)
		p.UnrealizedPnL = p.UnrealizedPnL.Add(pos.Unrealized)
		p.RealizedPnL = p.RealizedPnL.Add(pos.Realized)
	}
	metrics := CalculateRiskMetrics(all)
	p.RiskMetrics = &metrics

	if err := s.portfolios.UpdateValuation(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Portfolio refreshed",
		zap.Int("portfolio_id", p.ID),
		zap.String("total_value", p.TotalValue.StringFixed(2)),
		zap.Int("positions", metrics.PositionCount))
	return p, nil
}

// CalculateRiskMetrics summarizes the exposure of open positions. Flat
// positions are ignored.
func CalculateRiskMetrics(positions []model.Position) model.RiskMetrics {
	var m model.RiskMetrics
	for _, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}
		exposure := pos.LastPrice.Mul(decimal.NewFromInt(int64(pos.Quantity))).Abs()
		m.TotalExposure = m.TotalExposure.Add(exposure)
		if exposure.GreaterThan(m.LargestPosition) {
			m.LargestPosition = exposure
		}
		m.PositionCount++
	}
	if m.TotalExposure.IsPositive() {
		m.Concentration = m.LargestPosition.Div(m.TotalExposure).Round(4)
	}
	return m
}

// PlaceOrder records a trade and sends it to the broker. Market orders are
// marked executed once accepted; other order types stay pending until
// cancelled.
func (s *TradingService) PlaceOrder(ctx context.Context, userID int, req *model.OrderRequest) (*model.Trade, error) {
	if err := validator.ValidateOrder(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.GetPortfolio(ctx, userID, req.PortfolioID); err != nil {
		return nil, err
	}
	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := &model.Trade{
		UserID:      userID,
		PortfolioID: req.PortfolioID,
		StrategyID:  req.StrategyID,
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		TradeType:   req.TradeType,
		OrderType:   req.OrderType,
		Product:     req.Product,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Status:      model.TradeStatusPending,
		Notes:       req.Notes,
		EntryTime:   s.now(),
	}
	if t.Exchange == "" {
		t.Exchange = s.exchange
	}
	if t.OrderType == "" {
		t.OrderType = DefaultOrderType
	}
	if t.Product == "" {
		t.Product = DefaultProduct
	}
	if req.StopLoss != nil {
		t.StopLoss = decimal.NewNullDecimal(*req.StopLoss)
	}
	if req.Target != nil {
		t.Target = decimal.NewNullDecimal(*req.Target)
	}
	if t.OrderType == DefaultOrderType && t.Price.IsZero() {
		t.Price = s.lastPrice(ctx, session, t.Exchange, t.Symbol)
	}
	t.TotalAmount = t.Price.Mul(decimal.NewFromInt(int64(t.Quantity)))

	return s.submit(ctx, session, t)
}

// submit persists t as pending, places it with the broker and records the outcome.
func (s *TradingService) submit(ctx context.Context, session client.Session, t *model.Trade) (*model.Trade, error) {
	id, err := s.trades.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id

	params := client.OrderParams{
		Exchange:        t.Exchange,
		TradingSymbol:   t.Symbol,
		TransactionType: t.TradeType,
		OrderType:       t.OrderType,
		Product:         t.Product,
		Quantity:        t.Quantity,
		Tag:             "trade" + strconv.Itoa(t.ID),
	}
	if t.OrderType != DefaultOrderType {
		params.Price = t.Price
	}
	if (t.OrderType == "SL" || t.OrderType == "SL-M") && t.StopLoss.Valid {
		params.TriggerPrice = t.StopLoss.Decimal
	}

	orderID, err := s.broker.PlaceOrder(ctx, session, params)
	if err != nil {
		t.Status = model.TradeStatusFailed
		if uerr := s.trades.UpdateStatus(ctx, t.ID, t.Status, nil, nil); uerr != nil {
			s.logger.Error("Failed to mark trade failed", zap.Error(uerr), zap.Int("trade_id", t.ID))
		}
		s.publish(ctx, t)
		return nil, fmt.Errorf("broker rejected order: %w", err)
	}

	t.OrderID = &orderID
	var executedAt *time.Time
	if t.OrderType == DefaultOrderType {
		now := s.now()
		executedAt = &now
		t.Status = model.TradeStatusExecuted
		t.ExecutionTime = executedAt
	}
	if err := s.trades.UpdateStatus(ctx, t.ID, t.Status, &orderID, executedAt); err != nil {
		return nil, err
	}

	s.logger.Info("Order placed",
		zap.Int("trade_id", t.ID),
		zap.String("order_id", orderID),
		zap.String("symbol", t.Symbol),
		zap.String("status", string(t.Status)))
	s.publish(ctx, t)
	return t, nil
}

// ListOrders returns one page of the user's trades, optionally filtered by status
func (s *TradingService) ListOrders(ctx context.Context, userID int, statuses []model.TradeStatus, p utils.PaginationParams) ([]model.Trade, int, error) {
	return s.trades.ListByUser(ctx, userID, statuses, p.Limit, p.Offset())
}

// GetOrder returns a trade owned by userID
func (s *TradingService) GetOrder(ctx context.Context, userID, id int) (*model.Trade, error) {
	t, err := s.trades.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("trade %w", ErrNotFound)
	}
	if t.UserID != userID {
		return nil, ErrAccessDenied
	}
	return t, nil
}

// ClosePosition places the opposite market order for an executed trade at the
// last traded price and records the realized P&L on the original trade.
func (s *TradingService) ClosePosition(ctx context.Context, userID, tradeID int) (*model.Trade, error) {
	orig, err := s.GetOrder(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	if orig.Status != model.TradeStatusExecuted {
		return nil, fmt.Errorf("%w: trade %d is %s", ErrConflict, orig.ID, orig.Status)
	}
	if orig.PnL.Valid {
		return nil, fmt.Errorf("%w: trade %d is already closed", ErrConflict, orig.ID)
	}

	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	ltp, err := s.broker.LTP(ctx, session, orig.Exchange+":"+orig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last price: %w", err)
	}
	price, ok := ltp[orig.Exchange+":"+orig.Symbol]
	if !ok {
		return nil, fmt.Errorf("no last price for %s:%s", orig.Exchange, orig.Symbol)
	}

	note := fmt.Sprintf("close of trade %d", orig.ID)
	closing := &model.Trade{
		UserID:      userID,
		PortfolioID: orig.PortfolioID,
		StrategyID:  orig.StrategyID,
		Symbol:      orig.Symbol,
		Exchange:    orig.Exchange,
		TradeType:   orig.TradeType.Opposite(),
		OrderType:   DefaultOrderType,
		Product:     orig.Product,
		Quantity:    orig.Quantity,
		Price:       price,
		TotalAmount: price.Mul(decimal.NewFromInt(int64(orig.Quantity))),
		Status:      model.TradeStatusPending,
		Notes:       &note,
		EntryTime:   s.now(),
	}
	closing, err = s.submit(ctx, session, closing)
	if err != nil {
		return nil, err
	}

	pnl := RealizedPnL(orig, price)
	if err := s.trades.SetPnL(ctx, orig.ID, pnl); err != nil {
		return nil, err
	}
	closing.PnL = decimal.NewNullDecimal(pnl)
	return closing, nil
}

// RealizedPnL is the profit of closing t at exitPrice.
func RealizedPnL(t *model.Trade, exitPrice decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(t.Price)
	if t.TradeType == model.TradeTypeSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

// CancelOrder cancels a pending order with the broker
func (s *TradingService) CancelOrder(ctx context.Context, userID, tradeID int) (*model.Trade, error) {
	t, err := s.GetOrder(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TradeStatusPending {
		return nil, fmt.Errorf("%w: trade %d is %s", ErrConflict, t.ID, t.Status)
	}

	if t.OrderID != nil {
		session, err := s.sessions.Resolve(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.broker.CancelOrder(ctx, session, *t.OrderID); err != nil {
			return nil, fmt.Errorf("broker refused cancel: %w", err)
		}
	}

	t.Status = model.TradeStatusCancelled
	if err := s.trades.UpdateStatus(ctx, t.ID, t.Status, nil, nil); err != nil {
		return nil, err
	}
	s.publish(ctx, t)
	return t, nil
}

// Holdings returns the broker holdings of the user's account
func (s *TradingService) Holdings(ctx context.Context, userID int) ([]model.Position, error) {
	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.broker.Holdings(ctx, session)
}

// Positions returns the broker net positions of the user's account
func (s *TradingService) Positions(ctx context.Context, userID int) ([]model.Position, error) {
	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.broker.Positions(ctx, session)
}

func (s *TradingService) lastPrice(ctx context.Context, session client.Session, exchange, symbol string) decimal.Decimal {
	key := exchange + ":" + symbol
	prices, err := s.broker.LTP(ctx, session, key)
	if err != nil {
		s.logger.Warn("Failed to fetch last price", zap.Error(err), zap.String("instrument", key))
		return decimal.Zero
	}
	return prices[key]
}

func (s *TradingService) publish(ctx context.Context, t *model.Trade) {
	if s.topic == "" {
		return
	}
	ev := model.OrderEvent{
		TradeID:   t.ID,
		UserID:    t.UserID,
		Symbol:    t.Symbol,
		TradeType: t.TradeType,
		Quantity:  t.Quantity,
		Price:     t.Price,
		Status:    t.Status,
		Timestamp: s.now(),
	}
	if t.OrderID != nil {
		ev.OrderID = *t.OrderID
	}
	if err := s.publisher.Publish(ctx, s.topic, strconv.Itoa(t.UserID), ev); err != nil {
		s.logger.Warn("Failed to publish order event", zap.Error(err), zap.Int("trade_id", t.ID))
	}
}
