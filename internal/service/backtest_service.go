package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/backtest"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/events"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/signal"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/storage"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/utils"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/validator"
	"go.uber.org/zap"
)

// BacktestStore persists backtest runs.
type BacktestStore interface {
	Create(ctx context.Context, b *model.Backtest) (int, error)
	GetByID(ctx context.Context, id int) (*model.Backtest, error)
	ListByUser(ctx context.Context, userID int, strategyID *int, limit, offset int) ([]model.Backtest, int, error)
	MarkRunning(ctx context.Context, id int) error
	Complete(ctx context.Context, id int, res *model.BacktestResult, reportKey, reportURL *string) error
	Fail(ctx context.Context, id int, message string) error
}

// BarProvider loads historical bars.
type BarProvider interface {
	HistoricalBars(ctx context.Context, s client.Session, instrumentToken int64, interval string, from, to time.Time) ([]model.PriceBar, error)
}

// BacktestService handles backtest operations
type BacktestService struct {
	backtests  BacktestStore
	strategies StrategyStore
	bars       BarProvider
	sessions   SessionResolver
	simulator  *backtest.Simulator
	reports    storage.Storage
	publisher  events.Publisher
	topic      string
	cfg        config.BacktestConfig
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewBacktestService creates a new backtest service
func NewBacktestService(
	backtests BacktestStore,
	strategies StrategyStore,
	bars BarProvider,
	sessions SessionResolver,
	reports storage.Storage,
	publisher events.Publisher,
	topic string,
	cfg config.BacktestConfig,
	logger *zap.Logger,
) *BacktestService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &BacktestService{
		backtests:  backtests,
		strategies: strategies,
		bars:       bars,
		sessions:   sessions,
		simulator:  backtest.NewSimulator(logger),
		reports:    reports,
		publisher:  publisher,
		topic:      topic,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start creates a pending backtest for a strategy and runs it in the background
func (s *BacktestService) Start(ctx context.Context, userID, strategyID int, req *model.BacktestRequest) (*model.Backtest, error) {
	st, err := s.ownedStrategy(ctx, userID, strategyID)
	if err != nil {
		return nil, err
	}

	end := req.EndDate
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if err := validator.ValidateBacktestWindow(req.StartDate, end); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.cfg.InitialCapital
	}
	cfg, err := backtest.ConfigFromStrategy(st, capital, req.CloseAtEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cfg.RiskFreeRate = s.riskFreeRate()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	interval := req.Interval
	if interval == "" {
		interval = s.cfg.Interval
	}

	bt := &model.Backtest{
		UserID:          userID,
		StrategyID:      strategyID,
		InstrumentToken: req.InstrumentToken,
		Symbol:          req.Symbol,
		Interval:        interval,
		StartDate:       req.StartDate,
		EndDate:         end,
		InitialCapital:  cfg.StartingCapital,
		Status:          model.BacktestStatusPending,
	}
	id, err := s.backtests.Create(ctx, bt)
	if err != nil {
		return nil, err
	}
	bt.ID = id
	bt.CreatedAt = time.Now().UTC()

	s.logger.Info("Backtest queued",
		zap.Int("backtest_id", id),
		zap.Int("strategy_id", strategyID),
		zap.Int("user_id", userID))

	run := *bt
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(&run, cfg)
	}()

	return bt, nil
}

func (s *BacktestService) riskFreeRate() *float64 {
	rate := s.cfg.RiskFreeRate
	return &rate
}

// Wait blocks until every background run has finished
func (s *BacktestService) Wait() {
	s.wg.Wait()
}

// run executes a backtest in the background
func (s *BacktestService) run(bt *model.Backtest, cfg backtest.Config) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.backtests.MarkRunning(ctx, bt.ID); err != nil {
		s.fail(ctx, bt, fmt.Sprintf("failed to mark running: %v", err))
		return
	}

	session, err := s.sessions.Resolve(ctx, bt.UserID)
	if err != nil {
		s.fail(ctx, bt, err.Error())
		return
	}

	bars, err := s.bars.HistoricalBars(ctx, session, bt.InstrumentToken, bt.Interval, bt.StartDate, bt.EndDate)
	if err != nil {
		s.fail(ctx, bt, fmt.Sprintf("failed to fetch market data: %v", err))
		return
	}

	res, err := s.simulator.Run(bars, cfg)
	if err != nil {
		s.fail(ctx, bt, fmt.Sprintf("simulation failed: %v", err))
		return
	}

	if err := s.strategies.UpdatePerformance(ctx, bt.StrategyID, res); err != nil {
		s.logger.Warn("Failed to update strategy performance",
			zap.Error(err),
			zap.Int("strategy_id", bt.StrategyID))
	}

	var reportKey, reportURL *string
	if s.reports != nil {
		key, url, err := s.archive(ctx, bt, res)
		if err != nil {
			s.logger.Warn("Failed to archive backtest report", zap.Error(err), zap.Int("backtest_id", bt.ID))
		} else {
			reportKey, reportURL = &key, &url
		}
	}

	if err := s.backtests.Complete(ctx, bt.ID, res, reportKey, reportURL); err != nil {
		s.fail(ctx, bt, fmt.Sprintf("failed to store backtest result: %v", err))
		return
	}

	s.logger.Info("Backtest completed",
		zap.Int("backtest_id", bt.ID),
		zap.Int("total_trades", res.TotalTrades),
		zap.Float64("total_pnl", res.TotalPnL))

	s.publish(ctx, model.BacktestEvent{
		BacktestID:  bt.ID,
		StrategyID:  bt.StrategyID,
		UserID:      bt.UserID,
		Status:      model.BacktestStatusCompleted,
		TotalTrades: res.TotalTrades,
		TotalPnL:    res.TotalPnL,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *BacktestService) archive(ctx context.Context, bt *model.Backtest, res *model.BacktestResult) (string, string, error) {
	report := struct {
		Backtest *model.Backtest       `json:"backtest"`
		Result   *model.BacktestResult `json:"result"`
	}{bt, res}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", "", err
	}
	key := storage.ReportKey(bt.UserID, bt.ID)
	url, err := s.reports.Put(ctx, key, body, "application/json")
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// fail marks a backtest as failed with an error message
func (s *BacktestService) fail(ctx context.Context, bt *model.Backtest, message string) {
	s.logger.Error("Backtest failed",
		zap.Int("backtest_id", bt.ID),
		zap.String("error", message))

	// the run context may be the one that expired
	failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.backtests.Fail(failCtx, bt.ID, message); err != nil {
		s.logger.Error("Failed to mark backtest as failed", zap.Error(err), zap.Int("backtest_id", bt.ID))
	}

	s.publish(failCtx, model.BacktestEvent{
		BacktestID: bt.ID,
		StrategyID: bt.StrategyID,
		UserID:     bt.UserID,
		Status:     model.BacktestStatusFailed,
		Error:      message,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *BacktestService) publish(ctx context.Context, ev model.BacktestEvent) {
	if s.topic == "" {
		return
	}
	if err := s.publisher.Publish(ctx, s.topic, fmt.Sprint(ev.BacktestID), ev); err != nil {
		s.logger.Warn("Failed to publish backtest event", zap.Error(err), zap.Int("backtest_id", ev.BacktestID))
	}
}

// Get returns a backtest owned by userID
func (s *BacktestService) Get(ctx context.Context, userID, id int) (*model.Backtest, error) {
	bt, err := s.backtests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, fmt.Errorf("backtest %w", ErrNotFound)
	}
	if bt.UserID != userID {
		return nil, ErrAccessDenied
	}
	return bt, nil
}

// List returns one page of the user's backtests
func (s *BacktestService) List(ctx context.Context, userID int, strategyID *int, p utils.PaginationParams) ([]model.Backtest, int, error) {
	return s.backtests.ListByUser(ctx, userID, strategyID, p.Limit, p.Offset())
}

// Report opens the archived JSON report of a completed backtest
func (s *BacktestService) Report(ctx context.Context, userID, id int) (io.ReadCloser, error) {
	bt, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if bt.ReportKey == nil || s.reports == nil {
		return nil, fmt.Errorf("report %w", ErrNotFound)
	}
	rc, err := s.reports.Get(ctx, *bt.ReportKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("report %w", ErrNotFound)
	}
	return rc, err
}

// RunCrossover runs a fast/slow SMA crossover synchronously without persisting it
func (s *BacktestService) RunCrossover(ctx context.Context, userID int, req *model.CrossoverRequest) (*model.BacktestResult, error) {
	end := req.EndDate
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if err := validator.ValidateBacktestWindow(req.StartDate, end); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	params := model.IndicatorSettings{FastWindow: req.ShortWindow, SlowWindow: req.LongWindow}.Params()
	cfg := backtest.Config{
		StartingCapital: req.InitialCapital,
		RiskPerTrade:    req.RiskPerTrade,
		Conditions: signal.Conditions{
			Entry: []signal.Rule{signal.SMACrossover},
			Exit:  []signal.Rule{signal.SMACrossunder},
		},
		Indicators:   params,
		RiskFreeRate: s.riskFreeRate(),
	}
	if cfg.StartingCapital <= 0 {
		cfg.StartingCapital = s.cfg.InitialCapital
	}
	if cfg.StartingCapital <= 0 {
		cfg.StartingCapital = backtest.DefaultStartingCapital
	}
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	interval := req.Interval
	if interval == "" {
		interval = s.cfg.Interval
	}

	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	bars, err := s.bars.HistoricalBars(ctx, session, req.InstrumentToken, interval, req.StartDate, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market data: %w", err)
	}
	return s.simulator.Run(bars, cfg)
}

func (s *BacktestService) ownedStrategy(ctx context.Context, userID, strategyID int) (*model.Strategy, error) {
	st, err := s.strategies.GetByID(ctx, strategyID)
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
