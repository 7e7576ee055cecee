package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeRepository handles database operations for trades
type TradeRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sqlx.DB, logger *zap.Logger) *TradeRepository {
	return &TradeRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a trade and returns its ID
func (r *TradeRepository) Create(ctx context.Context, t *model.Trade) (int, error) {
	query := `
		INSERT INTO trades (
			user_id, portfolio_id, strategy_id, symbol, exchange, trade_type,
			order_type, product, quantity, price, total_amount, status,
			stop_loss, target, notes, entry_time
		) VALUES (
			:user_id, :portfolio_id, :strategy_id, :symbol, :exchange, :trade_type,
			:order_type, :product, :quantity, :price, :total_amount, :status,
			:stop_loss, :target, :notes, :entry_time
		) RETURNING id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, t)
	if err != nil {
		r.logger.Error("Failed to create trade", zap.Error(err))
		return 0, err
	}
	defer rows.Close()

	var id int
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, rows.Err()
}

// GetByID retrieves a trade by ID
func (r *TradeRepository) GetByID(ctx context.Context, id int) (*model.Trade, error) {
	var t model.Trade
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM trades WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get trade", zap.Error(err), zap.Int("id", id))
		return nil, err
	}
	return &t, nil
}

// ListByUser returns one page of a user's trades. An empty status list
// matches every status.
func (r *TradeRepository) ListByUser(ctx context.Context, userID int, statuses []model.TradeStatus, limit, offset int) ([]model.Trade, int, error) {
	filter := make([]string, len(statuses))
	for i, s := range statuses {
		filter[i] = string(s)
	}

	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM trades
		WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))`,
		userID, pq.Array(filter))
	if err != nil {
		r.logger.Error("Failed to count trades", zap.Error(err))
		return nil, 0, err
	}

	trades := []model.Trade{}
	err = r.db.SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY entry_time DESC
		LIMIT $3 OFFSET $4`,
		userID, pq.Array(filter), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list trades", zap.Error(err))
		return nil, 0, err
	}
	return trades, total, nil
}

// UpdateStatus records the broker outcome of a trade
func (r *TradeRepository) UpdateStatus(ctx context.Context, id int, status model.TradeStatus, orderID *string, executedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE trades SET
			status = $2,
			order_id = COALESCE($3, order_id),
			execution_time = COALESCE($4, execution_time),
			updated_at = NOW()
		WHERE id = $1`,
		id, status, orderID, executedAt)
	if err != nil {
		r.logger.Error("Failed to update trade status", zap.Error(err), zap.Int("id", id))
	}
	return err
}

// SetPnL stores the realized P&L of a closed trade
func (r *TradeRepository) SetPnL(ctx context.Context, id int, pnl decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE trades SET pnl = $2, updated_at = NOW() WHERE id = $1`, id, pnl)
	if err != nil {
		r.logger.Error("Failed to set trade pnl", zap.Error(err), zap.Int("id", id))
	}
	return err
}
