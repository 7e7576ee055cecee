package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/shopspring/decimal"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[int]*model.User{}}
}

func (f *fakeUsers) Create(_ context.Context, email, hash string, fullName *string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.users[f.nextID] = &model.User{ID: f.nextID, Email: email, PasswordHash: hash, FullName: fullName, IsActive: true}
	return f.nextID, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Update(_ context.Context, id int, email, fullName, hash *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if email != nil {
		u.Email = *email
	}
	if fullName != nil {
		u.FullName = fullName
	}
	if hash != nil {
		u.PasswordHash = *hash
	}
	return nil
}

func (f *fakeUsers) UpdateBrokerCredentials(_ context.Context, id int, apiKey, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.KiteAPIKey, u.KiteAccessToken = &apiKey, &accessToken
	u.BrokerConfigured = true
	return nil
}

type fakeStrategies struct {
	mu          sync.Mutex
	nextID      int
	strategies  map[int]*model.Strategy
	performance map[int]*model.BacktestResult
}

func newFakeStrategies() *fakeStrategies {
	return &fakeStrategies{strategies: map[int]*model.Strategy{}, performance: map[int]*model.BacktestResult{}}
}

func (f *fakeStrategies) Create(_ context.Context, s *model.Strategy) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *s
	cp.ID = f.nextID
	f.strategies[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeStrategies) GetByID(_ context.Context, id int) (*model.Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.strategies[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStrategies) ListByUser(_ context.Context, userID, limit, offset int) ([]model.Strategy, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.Strategy
	for id := 1; id <= f.nextID; id++ {
		if s, ok := f.strategies[id]; ok && s.UserID == userID {
			all = append(all, *s)
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeStrategies) Update(_ context.Context, s *model.Strategy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.strategies[s.ID] = &cp
	return nil
}

func (f *fakeStrategies) UpdatePerformance(_ context.Context, id int, res *model.BacktestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performance[id] = res
	if s, ok := f.strategies[id]; ok {
		s.TotalTrades = res.TotalTrades
		s.TotalPnL = res.TotalPnL
		s.BacktestResults = res
	}
	return nil
}

func (f *fakeStrategies) Delete(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.strategies, id)
	return nil
}

type fakeBacktests struct {
	mu          sync.Mutex
	nextID      int
	backtests   map[int]*model.Backtest
	completeErr error
}

func newFakeBacktests() *fakeBacktests {
	return &fakeBacktests{backtests: map[int]*model.Backtest{}}
}

func (f *fakeBacktests) Create(_ context.Context, b *model.Backtest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *b
	cp.ID = f.nextID
	cp.Status = model.BacktestStatusPending
	f.backtests[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeBacktests) GetByID(_ context.Context, id int) (*model.Backtest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.backtests[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBacktests) ListByUser(_ context.Context, userID int, strategyID *int, limit, offset int) ([]model.Backtest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Backtest
	for id := 1; id <= f.nextID; id++ {
		b := f.backtests[id]
		if b.UserID == userID && (strategyID == nil || b.StrategyID == *strategyID) {
			out = append(out, *b)
		}
	}
	return out, len(out), nil
}

func (f *fakeBacktests) MarkRunning(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backtests[id].Status = model.BacktestStatusRunning
	return nil
}

func (f *fakeBacktests) Complete(_ context.Context, id int, res *model.BacktestResult, reportKey, reportURL *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	b := f.backtests[id]
	b.Status = model.BacktestStatusCompleted
	b.Results, b.ReportKey, b.ReportURL = res, reportKey, reportURL
	return nil
}

func (f *fakeBacktests) Fail(_ context.Context, id int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.backtests[id]
	b.Status = model.BacktestStatusFailed
	b.ErrorMessage = &message
	return nil
}

type fakeBars struct {
	bars []model.PriceBar
	err  error

	mu       sync.Mutex
	sessions []client.Session
}

func (f *fakeBars) HistoricalBars(_ context.Context, s client.Session, _ int64, _ string, _, _ time.Time) ([]model.PriceBar, error) {
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return f.bars, f.err
}

type staticSessions struct {
	session client.Session
	err     error
}

func (s staticSessions) Resolve(context.Context, int) (client.Session, error) {
	return s.session, s.err
}

var testSession = client.Session{APIKey: "key", AccessToken: "token"}

type published struct {
	topic string
	key   string
	value interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, key, value})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type fakeBroker struct {
	mu        sync.Mutex
	ltp       map[string]decimal.Decimal
	positions []model.Position
	holdings  []model.Position
	placeErr  error
	placed    []client.OrderParams
	cancelled []string
}

func (b *fakeBroker) LTP(_ context.Context, _ client.Session, instruments ...string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, i := range instruments {
		if p, ok := b.ltp[i]; ok {
			out[i] = p
		}
	}
	return out, nil
}

func (b *fakeBroker) Holdings(context.Context, client.Session) ([]model.Position, error) {
	return b.holdings, nil
}

func (b *fakeBroker) Positions(context.Context, client.Session) ([]model.Position, error) {
	return b.positions, nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, _ client.Session, p client.OrderParams) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.placeErr != nil {
		return "", b.placeErr
	}
	b.placed = append(b.placed, p)
	return fmt.Sprintf("ord-%d", len(b.placed)), nil
}

func (b *fakeBroker) CancelOrder(_ context.Context, _ client.Session, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

type fakePortfolios struct {
	nextID     int
	portfolios map[int]*model.Portfolio
}

func newFakePortfolios() *fakePortfolios {
	return &fakePortfolios{portfolios: map[int]*model.Portfolio{}}
}

func (f *fakePortfolios) Create(_ context.Context, userID int, req *model.PortfolioCreate) (int, error) {
	f.nextID++
	f.portfolios[f.nextID] = &model.Portfolio{ID: f.nextID, UserID: userID, Name: req.Name, Description: req.Description}
	return f.nextID, nil
}

func (f *fakePortfolios) GetByID(_ context.Context, id int) (*model.Portfolio, error) {
	p, ok := f.portfolios[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePortfolios) ListByUser(_ context.Context, userID int) ([]model.Portfolio, error) {
	var out []model.Portfolio
	for id := 1; id <= f.nextID; id++ {
		if p := f.portfolios[id]; p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePortfolios) UpdateValuation(_ context.Context, p *model.Portfolio) error {
	cp := *p
	f.portfolios[p.ID] = &cp
	return nil
}

type fakeTrades struct {
	nextID int
	trades map[int]*model.Trade
}

func newFakeTrades() *fakeTrades {
	return &fakeTrades{trades: map[int]*model.Trade{}}
}

func (f *fakeTrades) Create(_ context.Context, t *model.Trade) (int, error) {
	f.nextID++
	cp := *t
	cp.ID = f.nextID
	f.trades[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeTrades) GetByID(_ context.Context, id int) (*model.Trade, error) {
	t, ok := f.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTrades) ListByUser(_ context.Context, userID int, statuses []model.TradeStatus, limit, offset int) ([]model.Trade, int, error) {
	var out []model.Trade
	for id := 1; id <= f.nextID; id++ {
		t := f.trades[id]
		if t.UserID != userID {
			continue
		}
		match := len(statuses) == 0
		for _, s := range statuses {
			match = match || t.Status == s
		}
		if match {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (f *fakeTrades) UpdateStatus(_ context.Context, id int, status model.TradeStatus, orderID *string, executedAt *time.Time) error {
	t := f.trades[id]
	t.Status = status
	if orderID != nil {
		t.OrderID = orderID
	}
	if executedAt != nil {
		t.ExecutionTime = executedAt
	}
	return nil
}

func (f *fakeTrades) SetPnL(_ context.Context, id int, pnl decimal.Decimal) error {
	f.trades[id].PnL = decimal.NewNullDecimal(pnl)
	return nil
}
