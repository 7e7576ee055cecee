package service

import (
	"context"
	"fmt"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/validator"
	"go.uber.org/zap"
)

// StrategyStore persists strategies.
type StrategyStore interface {
	Create(ctx context.Context, s *model.Strategy) (int, error)
	GetByID(ctx context.Context, id int) (*model.Strategy, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Strategy, int, error)
	Update(ctx context.Context, s *model.Strategy) error
	UpdatePerformance(ctx context.Context, id int, res *model.BacktestResult) error
	Delete(ctx context.Context, id int) error
}

// StrategyService handles strategy business logic
type StrategyService struct {
	strategies StrategyStore
	logger     *zap.Logger
}

// NewStrategyService creates a new strategy service
func NewStrategyService(strategies StrategyStore, logger *zap.Logger) *StrategyService {
	return &StrategyService{
		strategies: strategies,
		logger:     logger,
	}
}

// Create validates and stores a new strategy
func (s *StrategyService) Create(ctx context.Context, userID int, req *model.StrategyCreate) (*model.Strategy, error) {
	st := &model.Strategy{
		UserID:          userID,
		Name:            req.Name,
		Description:     req.Description,
		EntryConditions: req.EntryConditions,
		ExitConditions:  req.ExitConditions,
		RiskPerTrade:    req.RiskPerTrade,
		PositionSize:    req.PositionSize,
		IsActive:        true,
		IsAutomated:     req.IsAutomated,
	}
	if req.Indicators != nil {
		st.Indicators = *req.Indicators
	}
	if st.EntryConditions == nil {
		st.EntryConditions = model.Conditions{}
	}
	if st.ExitConditions == nil {
		st.ExitConditions = model.Conditions{}
	}

	if err := validator.ValidateStrategy(st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	id, err := s.strategies.Create(ctx, st)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Strategy created", zap.Int("strategy_id", id), zap.Int("user_id", userID))
	return s.strategies.GetByID(ctx, id)
}

// Get returns a strategy owned by userID
func (s *StrategyService) Get(ctx context.Context, userID, id int) (*model.Strategy, error) {
	st, err := s.strategies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("strategy %w", ErrNotFound)
	}
	if st.UserID != userID {
		return nil, ErrAccessDenied
	}
	return st, nil
}

// List returns one page of the user's strategies
func (s *StrategyService) List(ctx context.Context, userID int, p utils.PaginationParams) ([]model.Strategy, int, error) {
	return s.strategies.ListByUser(ctx, userID, p.Limit, p.Offset())
}

// Update applies the set fields of req to a strategy
func (s *StrategyService) Update(ctx context.Context, userID, id int, req *model.StrategyUpdate) (*model.Strategy, error) {
	st, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		st.Name = *req.Name
	}
	if req.Description != nil {
		st.Description = req.Description
	}
	if req.EntryConditions != nil {
		st.EntryConditions = req.EntryConditions
	}
	if req.ExitConditions != nil {
		st.ExitConditions = req.ExitConditions
	}
	if req.RiskPerTrade != nil {
		st.RiskPerTrade = *req.RiskPerTrade
	}
	if req.PositionSize != nil {
		// zero clears the fixed size
		if *req.PositionSize == 0 {
			st.PositionSize = nil
		} else {
			st.PositionSize = req.PositionSize
		}
	}
	if req.Indicators != nil {
		st.Indicators = *req.Indicators
	}
	if req.IsActive != nil {
		st.IsActive = *req.IsActive
	}
	if req.IsAutomated != nil {
		st.IsAutomated = *req.IsAutomated
	}

	if err := validator.ValidateStrategy(st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.strategies.Update(ctx, st); err != nil {
		return nil, err
	}
	return s.strategies.GetByID(ctx, id)
}

// Delete removes a strategy owned by userID
func (s *StrategyService) Delete(ctx context.Context, userID, id int) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.strategies.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Strategy deleted", zap.Int("strategy_id", id), zap.Int("user_id", userID))
	return nil
}
