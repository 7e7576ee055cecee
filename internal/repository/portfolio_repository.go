package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PortfolioRepository handles database operations for portfolios
type PortfolioRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sqlx.DB, logger *zap.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a portfolio and returns its ID
func (r *PortfolioRepository) Create(ctx context.Context, userID int, req *model.PortfolioCreate) (int, error) {
	var id int
	err := r.db.GetContext(ctx, &id,
		`INSERT INTO portfolios (user_id, name, description) VALUES ($1, $2, $3) RETURNING id`,
		userID, req.Name, req.Description)
	if err != nil {
		r.logger.Error("Failed to create portfolio", zap.Error(err))
		return 0, err
	}
	return id, nil
}

// GetByID retrieves a portfolio by ID
func (r *PortfolioRepository) GetByID(ctx context.Context, id int) (*model.Portfolio, error) {
	var p model.Portfolio
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM portfolios WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get portfolio", zap.Error(err), zap.Int("id", id))
		return nil, err
	}
	return &p, nil
}

// ListByUser returns all portfolios of a user
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID int) ([]model.Portfolio, error) {
	portfolios := []model.Portfolio{}
	err := r.db.SelectContext(ctx, &portfolios,
		`SELECT * FROM portfolios WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		r.logger.Error("Failed to list portfolios", zap.Error(err))
		return nil, err
	}
	return portfolios, nil
}

// UpdateValuation stores refreshed totals and risk metrics
func (r *PortfolioRepository) UpdateValuation(ctx context.Context, p *model.Portfolio) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE portfolios SET
			total_value = $2, unrealized_pnl = $3, realized_pnl = $4,
			risk_metrics = $5, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.TotalValue, p.UnrealizedPnL, p.RealizedPnL, p.RiskMetrics)
	if err != nil {
		r.logger.Error("Failed to update portfolio valuation", zap.Error(err), zap.Int("id", p.ID))
	}
	return err
}
