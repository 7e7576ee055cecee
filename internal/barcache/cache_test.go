package barcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	bars  []model.PriceBar
	err   error
	calls int
}

// HistoricalBars reads from and to as exchange wall clock, as Kite does.
func (f *fakeProvider) HistoricalBars(ctx context.Context, s client.Session, token int64, interval string, from, to time.Time) ([]model.PriceBar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	lo, hi := client.ExchangeTime(from), client.ExchangeTime(to)
	var out []model.PriceBar
	for _, b := range f.bars {
		if !b.Timestamp.Before(lo) && !b.Timestamp.After(hi) {
			out = append(out, b)
		}
	}
	return out, nil
}

func dailyBars(start time.Time, closes ...float64) []model.PriceBar {
	out := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = model.PriceBar{Timestamp: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	return out
}

func openCache(t *testing.T, up Provider) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "bars.db"), up, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_ReadThrough(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, client.Exchange)
	up := &fakeProvider{bars: dailyBars(start, 10, 11, 12, 13, 14)}
	c := openCache(t, up)
	ctx := context.Background()

	first, err := c.HistoricalBars(ctx, client.Session{}, 42, "day", start, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, first, 5)
	assert.Equal(t, 1, up.calls)

	// a sub-range of a fetched range is served locally
	second, err := c.HistoricalBars(ctx, client.Session{}, 42, "day", start.AddDate(0, 0, 1), start.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)
	require.Len(t, second, 3)
	assert.Equal(t, 11.0, second[0].Close)
	assert.Equal(t, 12.0, second[0].High)
	assert.True(t, second[0].Timestamp.Equal(start.AddDate(0, 0, 1)))

	// other intervals and wider ranges go upstream
	_, err = c.HistoricalBars(ctx, client.Session{}, 42, "minute", start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	_, err = c.HistoricalBars(ctx, client.Session{}, 42, "day", start.AddDate(0, 0, -1), start.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, up.calls)
}

func TestCache_UpstreamErrorIsNotCached(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, client.Exchange)
	up := &fakeProvider{err: errors.New("kite down")}
	c := openCache(t, up)

	_, err := c.HistoricalBars(context.Background(), client.Session{}, 1, "day", start, start.AddDate(0, 0, 2))
	assert.EqualError(t, err, "kite down")

	up.err = nil
	up.bars = dailyBars(start, 1, 2, 3)
	bars, err := c.HistoricalBars(context.Background(), client.Session{}, 1, "day", start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Equal(t, 2, up.calls)
}

func TestCache_HitMatchesMissForUTCRequests(t *testing.T) {
	// daily candles are stamped at exchange midnight, 18:30 UTC the day before
	up := &fakeProvider{bars: dailyBars(time.Date(2024, 1, 1, 0, 0, 0, 0, client.Exchange), 10, 11, 12, 13, 14)}
	c := openCache(t, up)
	ctx := context.Background()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	miss, err := c.HistoricalBars(ctx, client.Session{}, 7, "day", from, to)
	require.NoError(t, err)
	require.Len(t, miss, 5)

	hit, err := c.HistoricalBars(ctx, client.Session{}, 7, "day", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)
	require.Len(t, hit, len(miss))
	for i := range miss {
		assert.True(t, hit[i].Timestamp.Equal(miss[i].Timestamp), "bar %d", i)
		assert.Equal(t, miss[i].Close, hit[i].Close)
	}

	// a sub-range in UTC dates is served with the same bars upstream would return
	sub, err := c.HistoricalBars(ctx, client.Session{}, 7, "day", from.AddDate(0, 0, 1), to.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)
	require.Len(t, sub, 3)
	assert.Equal(t, 11.0, sub[0].Close)
}
