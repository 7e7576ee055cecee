package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	kiteVersion     = "3"
	kiteTimeLayout  = "2006-01-02T15:04:05-0700"
	kiteQueryLayout = "2006-01-02 15:04:05"

	// VarietyRegular is the order variety used for plain exchange orders.
	VarietyRegular = "regular"
)

// Exchange is the zone Kite reads query dates in and stamps candles with.
var Exchange = time.FixedZone("IST", 5*3600+30*60)

// ExchangeTime returns the instant Kite reads t as: the wall clock of t in
// the Exchange zone. HistoricalBars sends zone-less dates, so a request for
// [from, to] covers [ExchangeTime(from), ExchangeTime(to)].
func ExchangeTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, Exchange)
}

// ErrNoSession is returned when a call is made without broker credentials.
var ErrNoSession = errors.New("broker session is not configured")

// Session carries the Kite Connect credentials of one user. It is passed to
// every call; the client keeps no credentials of its own.
type Session struct {
	APIKey      string
	AccessToken string
}

// Valid reports whether both credentials are present.
func (s Session) Valid() bool {
	return s.APIKey != "" && s.AccessToken != ""
}

// APIError is an error envelope returned by the Kite API.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kite api error %d (%s): %s", e.StatusCode, e.ErrorType, e.Message)
}

// retryable reports whether a request that failed with e may succeed later.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// OrderParams describes an order to place with the broker.
type OrderParams struct {
	Exchange        string
	TradingSymbol   string
	TransactionType model.TradeType
	OrderType       string
	Product         string
	Quantity        int
	Price           decimal.Decimal
	TriggerPrice    decimal.Decimal
	Tag             string
}

// KiteClient talks to the Kite Connect REST API. Requests are throttled with
// a shared limiter and idempotent reads are retried with exponential backoff.
type KiteClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

// NewKiteClient creates a new Kite Connect client
func NewKiteClient(cfg config.KiteConfig, logger *zap.Logger) *KiteClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	return &KiteClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// HistoricalBars fetches OHLCV candles for an instrument between from and to.
func (c *KiteClient) HistoricalBars(ctx context.Context, s Session, instrumentToken int64, interval string, from, to time.Time) ([]model.PriceBar, error) {
	q := url.Values{}
	q.Set("from", from.Format(kiteQueryLayout))
	q.Set("to", to.Format(kiteQueryLayout))
	path := fmt.Sprintf("/instruments/historical/%d/%s?%s", instrumentToken, url.PathEscape(interval), q.Encode())

	var data struct {
		Candles [][]json.RawMessage `json:"candles"`
	}
	if err := c.get(ctx, s, path, &data); err != nil {
		return nil, err
	}

	bars := make([]model.PriceBar, 0, len(data.Candles))
	for i, raw := range data.Candles {
		bar, err := parseCandle(raw)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		bars = append(bars, bar)
	}

	c.logger.Debug("Fetched historical bars",
		zap.Int64("instrument_token", instrumentToken),
		zap.String("interval", interval),
		zap.Int("count", len(bars)))
	return bars, nil
}

func parseCandle(raw []json.RawMessage) (model.PriceBar, error) {
	if len(raw) < 6 {
		return model.PriceBar{}, fmt.Errorf("expected 6 fields, got %d", len(raw))
	}
	var ts string
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return model.PriceBar{}, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.Parse(kiteTimeLayout, ts)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, ts); err != nil {
			return model.PriceBar{}, fmt.Errorf("timestamp %q: %w", ts, err)
		}
	}
	var vals [5]float64
	for i := range vals {
		if err := json.Unmarshal(raw[i+1], &vals[i]); err != nil {
			return model.PriceBar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return model.PriceBar{
		Timestamp: t,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// LTP returns the last traded price for each instrument, keyed by the
// "EXCHANGE:SYMBOL" form it was requested with.
func (c *KiteClient) LTP(ctx context.Context, s Session, instruments ...string) (map[string]decimal.Decimal, error) {
	if len(instruments) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	q := url.Values{}
	for _, i := range instruments {
		q.Add("i", i)
	}

	var data map[string]struct {
		InstrumentToken int64           `json:"instrument_token"`
		LastPrice       decimal.Decimal `json:"last_price"`
	}
	if err := c.get(ctx, s, "/quote/ltp?"+q.Encode(), &data); err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(data))
	for k, v := range data {
		out[k] = v.LastPrice
	}
	return out, nil
}

type kitePosition struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Product       string          `json:"product"`
	Quantity      int             `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	PnL           decimal.Decimal `json:"pnl"`
	Unrealised    decimal.Decimal `json:"unrealised"`
	Realised      decimal.Decimal `json:"realised"`
}

func (p kitePosition) toModel() model.Position {
	unrealised := p.Unrealised
	if unrealised.IsZero() {
		unrealised = p.PnL
	}
	return model.Position{
		TradingSymbol: p.TradingSymbol,
		Exchange:      p.Exchange,
		Product:       p.Product,
		Quantity:      p.Quantity,
		AveragePrice:  p.AveragePrice,
		LastPrice:     p.LastPrice,
		Value:         p.LastPrice.Mul(decimal.NewFromInt(int64(p.Quantity))),
		Unrealized:    unrealised,
		Realized:      p.Realised,
	}
}

// Holdings returns the long-term holdings of the account.
func (c *KiteClient) Holdings(ctx context.Context, s Session) ([]model.Position, error) {
	var data []kitePosition
	if err := c.get(ctx, s, "/portfolio/holdings", &data); err != nil {
		return nil, err
	}
	out := make([]model.Position, len(data))
	for i, p := range data {
		out[i] = p.toModel()
	}
	return out, nil
}

// Positions returns the net positions of the trading day.
func (c *KiteClient) Positions(ctx context.Context, s Session) ([]model.Position, error) {
	var data struct {
		Net []kitePosition `json:"net"`
	}
	if err := c.get(ctx, s, "/portfolio/positions", &data); err != nil {
		return nil, err
	}
	out := make([]model.Position, len(data.Net))
	for i, p := range data.Net {
		out[i] = p.toModel()
	}
	return out, nil
}

// PlaceOrder places a regular order and returns the broker order id.
// Orders are never retried.
func (c *KiteClient) PlaceOrder(ctx context.Context, s Session, p OrderParams) (string, error) {
	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.TradingSymbol)
	form.Set("transaction_type", string(p.TransactionType))
	form.Set("order_type", p.OrderType)
	form.Set("product", p.Product)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	form.Set("validity", "DAY")
	if p.Price.IsPositive() {
		form.Set("price", p.Price.String())
	}
	if p.TriggerPrice.IsPositive() {
		form.Set("trigger_price", p.TriggerPrice.String())
	}
	if p.Tag != "" {
		form.Set("tag", p.Tag)
	}

	var data struct {
		OrderID string `json:"order_id"`
	}
	err := c.do(ctx, s, http.MethodPost, "/orders/"+VarietyRegular, strings.NewReader(form.Encode()), &data)
	if err != nil {
		c.logger.Error("Failed to place order",
			zap.Error(err),
			zap.String("symbol", p.TradingSymbol),
			zap.String("transaction_type", string(p.TransactionType)))
		return "", err
	}
	return data.OrderID, nil
}

// CancelOrder cancels a pending regular order.
func (c *KiteClient) CancelOrder(ctx context.Context, s Session, orderID string) error {
	path := fmt.Sprintf("/orders/%s/%s", VarietyRegular, url.PathEscape(orderID))
	return c.do(ctx, s, http.MethodDelete, path, nil, nil)
}

// get performs an idempotent request with retries.
func (c *KiteClient) get(ctx context.Context, s Session, path string, out interface{}) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := c.do(ctx, s, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrNoSession) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("Kite request failed, retrying",
			zap.Error(err),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait))
	})
}

func (c *KiteClient) do(ctx context.Context, s Session, method, path string, body io.Reader, out interface{}) error {
	if !s.Valid() {
		return ErrNoSession
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", s.APIKey, s.AccessToken))
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Status    string          `json:"status"`
		Message   string          `json:"message"`
		ErrorType string          `json:"error_type"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, ErrorType: "UnknownException", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode kite response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Status == "error" {
		return &APIError{StatusCode: resp.StatusCode, ErrorType: envelope.ErrorType, Message: envelope.Message}
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode kite data: %w", err)
	}
	return nil
}
