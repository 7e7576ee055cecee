// Package barcache is a read-through SQLite cache in front of a historical
// bar provider. Fetched ranges are remembered so repeated backtests over the
// same window do not hit the broker again.
package barcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
    instrument_token INTEGER NOT NULL,
    interval         TEXT    NOT NULL,
    ts               INTEGER NOT NULL,
    open             REAL    NOT NULL,
    high             REAL    NOT NULL,
    low              REAL    NOT NULL,
    close            REAL    NOT NULL,
    volume           REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (instrument_token, interval, ts)
);

CREATE TABLE IF NOT EXISTS fetched_ranges (
    instrument_token INTEGER NOT NULL,
    interval         TEXT    NOT NULL,
    from_ts          INTEGER NOT NULL,
    to_ts            INTEGER NOT NULL,
    fetched_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ranges ON fetched_ranges(instrument_token, interval);
`

// Provider fetches historical bars from the upstream source.
type Provider interface {
	HistoricalBars(ctx context.Context, s client.Session, instrumentToken int64, interval string, from, to time.Time) ([]model.PriceBar, error)
}

// Cache implements Provider over an upstream Provider.
type Cache struct {
	db       *sqlx.DB
	upstream Provider
	logger   *zap.Logger
	mu       sync.Mutex
}

type barRow struct {
	TS     int64   `db:"ts"`
	Open   float64 `db:"open"`
	High   float64 `db:"high"`
	Low    float64 `db:"low"`
	Close  float64 `db:"close"`
	Volume float64 `db:"volume"`
}

// Open opens (or creates) the cache database at path.
func Open(path string, upstream Provider, logger *zap.Logger) (*Cache, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("barcache.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("barcache.Open: apply schema: %w", err)
	}
	return &Cache{db: db, upstream: upstream, logger: logger}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// HistoricalBars serves the range from the cache when a previous fetch
// covered it, and otherwise fetches it upstream and stores the result.
// Ranges are kept as the exchange-zone instants the broker reads the
// request as, so a hit returns the same bars as the miss that filled it.
func (c *Cache) HistoricalBars(ctx context.Context, s client.Session, instrumentToken int64, interval string, from, to time.Time) ([]model.PriceBar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lo, hi := client.ExchangeTime(from), client.ExchangeTime(to)
	covered, err := c.covered(ctx, instrumentToken, interval, lo, hi)
	if err != nil {
		return nil, err
	}
	if covered {
		c.logger.Debug("Bar cache hit",
			zap.Int64("instrument_token", instrumentToken),
			zap.String("interval", interval))
		return c.load(ctx, instrumentToken, interval, lo, hi)
	}

	bars, err := c.upstream.HistoricalBars(ctx, s, instrumentToken, interval, from, to)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, instrumentToken, interval, lo, hi, bars); err != nil {
		c.logger.Warn("Failed to cache bars", zap.Error(err), zap.Int64("instrument_token", instrumentToken))
	}
	return bars, nil
}

func (c *Cache) covered(ctx context.Context, token int64, interval string, from, to time.Time) (bool, error) {
	var n int
	err := c.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM fetched_ranges
		 WHERE instrument_token = ? AND interval = ? AND from_ts <= ? AND to_ts >= ?`,
		token, interval, from.Unix(), to.Unix())
	if err != nil {
		return false, fmt.Errorf("barcache: lookup range: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) load(ctx context.Context, token int64, interval string, from, to time.Time) ([]model.PriceBar, error) {
	var rows []barRow
	err := c.db.SelectContext(ctx, &rows,
		`SELECT ts, open, high, low, close, volume FROM bars
		 WHERE instrument_token = ? AND interval = ? AND ts BETWEEN ? AND ?
		 ORDER BY ts`,
		token, interval, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("barcache: load bars: %w", err)
	}

	bars := make([]model.PriceBar, len(rows))
	for i, r := range rows {
		bars[i] = model.PriceBar{
			Timestamp: time.Unix(r.TS, 0).In(client.Exchange),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars, nil
}

func (c *Cache) store(ctx context.Context, token int64, interval string, from, to time.Time, bars []model.PriceBar) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO bars (instrument_token, interval, ts, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (instrument_token, interval, ts) DO UPDATE SET
		   open = excluded.open, high = excluded.high, low = excluded.low,
		   close = excluded.close, volume = excluded.volume`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, token, interval, b.Timestamp.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fetched_ranges (instrument_token, interval, from_ts, to_ts, fetched_at) VALUES (?, ?, ?, ?, ?)`,
		token, interval, from.Unix(), to.Unix(), time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
