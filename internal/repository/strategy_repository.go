package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// StrategyRepository handles database operations for strategies
type StrategyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db *sqlx.DB, logger *zap.Logger) *StrategyRepository {
	return &StrategyRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a strategy and returns its ID
func (r *StrategyRepository) Create(ctx context.Context, s *model.Strategy) (int, error) {
	query := `
		INSERT INTO strategies (
			user_id, name, description, entry_conditions, exit_conditions,
			risk_per_trade, position_size, indicators, is_active, is_automated
		) VALUES (
			:user_id, :name, :description, :entry_conditions, :exit_conditions,
			:risk_per_trade, :position_size, :indicators, :is_active, :is_automated
		) RETURNING id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, s)
	if err != nil {
		r.logger.Error("Failed to create strategy", zap.Error(err))
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

// GetByID retrieves a strategy by ID
func (r *StrategyRepository) GetByID(ctx context.Context, id int) (*model.Strategy, error) {
	var s model.Strategy
	if err := r.db.GetContext(ctx, &s, `SELECT * FROM strategies WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get strategy", zap.Error(err), zap.Int("id", id))
		return nil, err
	}
	return &s, nil
}

// ListByUser returns one page of a user's strategies and the total count
func (r *StrategyRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Strategy, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM strategies WHERE user_id = $1`, userID); err != nil {
		r.logger.Error("Failed to count strategies", zap.Error(err))
		return nil, 0, err
	}

	strategies := []model.Strategy{}
	err := r.db.SelectContext(ctx, &strategies,
		`SELECT * FROM strategies WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list strategies", zap.Error(err))
		return nil, 0, err
	}
	return strategies, total, nil
}

// Update writes the editable fields of a strategy
func (r *StrategyRepository) Update(ctx context.Context, s *model.Strategy) error {
	query := `
		UPDATE strategies SET
			name = :name,
			description = :description,
			entry_conditions = :entry_conditions,
			exit_conditions = :exit_conditions,
			risk_per_trade = :risk_per_trade,
			position_size = :position_size,
			indicators = :indicators,
			is_active = :is_active,
			is_automated = :is_automated,
			updated_at = NOW()
		WHERE id = :id
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		r.logger.Error("Failed to update strategy", zap.Error(err), zap.Int("id", s.ID))
		return err
	}
	return nil
}

// UpdatePerformance stores the outcome of the latest backtest on the strategy
func (r *StrategyRepository) UpdatePerformance(ctx context.Context, id int, res *model.BacktestResult) error {
	query := `
		UPDATE strategies SET
			total_trades = $2,
			winning_trades = $3,
			losing_trades = $4,
			total_pnl = $5,
			max_drawdown = $6,
			sharpe_ratio = $7,
			backtest_results = $8,
			last_execution = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id,
		res.TotalTrades, res.WinningTrades, res.LosingTrades,
		res.TotalPnL, res.MaxDrawdown, res.SharpeRatio, res)
	if err != nil {
		r.logger.Error("Failed to update strategy performance", zap.Error(err), zap.Int("id", id))
		return err
	}
	return nil
}

// Delete removes a strategy
func (r *StrategyRepository) Delete(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete strategy", zap.Error(err), zap.Int("id", id))
		return err
	}
	return nil
}
