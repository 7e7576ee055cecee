package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// BacktestRepository handles database operations for backtest runs
type BacktestRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBacktestRepository creates a new backtest repository
func NewBacktestRepository(db *sqlx.DB, logger *zap.Logger) *BacktestRepository {
	return &BacktestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending backtest and returns its ID
func (r *BacktestRepository) Create(ctx context.Context, b *model.Backtest) (int, error) {
	query := `
		INSERT INTO backtests (
			user_id, strategy_id, instrument_token, symbol, interval,
			start_date, end_date, initial_capital, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int
	err := r.db.GetContext(ctx, &id, query,
		b.UserID, b.StrategyID, b.InstrumentToken, b.Symbol, b.Interval,
		b.StartDate, b.EndDate, b.InitialCapital, model.BacktestStatusPending)
	if err != nil {
		r.logger.Error("Failed to create backtest", zap.Error(err))
		return 0, err
	}
	return id, nil
}

// GetByID retrieves a backtest by ID
func (r *BacktestRepository) GetByID(ctx context.Context, id int) (*model.Backtest, error) {
	var b model.Backtest
	if err := r.db.GetContext(ctx, &b, `SELECT * FROM backtests WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get backtest", zap.Error(err), zap.Int("id", id))
		return nil, err
	}
	return &b, nil
}

// ListByUser returns one page of a user's backtests, optionally for one strategy
func (r *BacktestRepository) ListByUser(ctx context.Context, userID int, strategyID *int, limit, offset int) ([]model.Backtest, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM backtests WHERE user_id = $1 AND ($2::int IS NULL OR strategy_id = $2)`,
		userID, strategyID)
	if err != nil {
		r.logger.Error("Failed to count backtests", zap.Error(err))
		return nil, 0, err
	}

	backtests := []model.Backtest{}
	err = r.db.SelectContext(ctx, &backtests, `
		SELECT * FROM backtests
		WHERE user_id = $1 AND ($2::int IS NULL OR strategy_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		userID, strategyID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list backtests", zap.Error(err))
		return nil, 0, err
	}
	return backtests, total, nil
}

// MarkRunning moves a backtest from pending to running
func (r *BacktestRepository) MarkRunning(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE backtests SET status = $2 WHERE id = $1`,
		id, model.BacktestStatusRunning)
	if err != nil {
		r.logger.Error("Failed to mark backtest running", zap.Error(err), zap.Int("id", id))
	}
	return err
}

// Complete stores the result and report location of a finished backtest
func (r *BacktestRepository) Complete(ctx context.Context, id int, res *model.BacktestResult, reportKey, reportURL *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE backtests SET
			status = $2, results = $3, report_key = $4, report_url = $5, completed_at = NOW()
		WHERE id = $1`,
		id, model.BacktestStatusCompleted, res, reportKey, reportURL)
	if err != nil {
		r.logger.Error("Failed to complete backtest", zap.Error(err), zap.Int("id", id))
	}
	return err
}

// Fail records the error of a backtest that could not finish
func (r *BacktestRepository) Fail(ctx context.Context, id int, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE backtests SET status = $2, error_message = $3, completed_at = NOW()
		WHERE id = $1`,
		id, model.BacktestStatusFailed, message)
	if err != nil {
		r.logger.Error("Failed to mark backtest failed", zap.Error(err), zap.Int("id", id))
	}
	return err
}
