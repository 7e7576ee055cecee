package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/validator"
	"go.uber.org/zap"
)

// MarketService serves historical bars annotated with indicators
type MarketService struct {
	bars     BarProvider
	sessions SessionResolver
	params   indicator.Params
	logger   *zap.Logger
}

// NewMarketService creates a new market data service
func NewMarketService(bars BarProvider, sessions SessionResolver, params indicator.Params, logger *zap.Logger) *MarketService {
	return &MarketService{
		bars:     bars,
		sessions: sessions,
		params:   params.WithDefaults(),
		logger:   logger,
	}
}

// Indicators loads the bars of an instrument and pairs each with its indicator set
func (s *MarketService) Indicators(ctx context.Context, userID int, token int64, interval string, from, to time.Time) ([]model.IndicatorPoint, error) {
	if token <= 0 {
		return nil, fmt.Errorf("%w: instrument token must be positive", ErrInvalidInput)
	}
	if err := validator.ValidateBacktestWindow(from, to); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	bars, err := s.bars.HistoricalBars(ctx, session, token, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market data: %w", err)
	}

	sets, err := indicator.Compute(model.Closes(bars), s.params)
	if err != nil {
		return nil, err
	}
	points := make([]model.IndicatorPoint, len(bars))
	for i, b := range bars {
		points[i] = model.IndicatorPoint{PriceBar: b, Indicators: sets[i]}
	}

	s.logger.Debug("Indicators computed",
		zap.Int64("instrument_token", token),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)))
	return points, nil
}
