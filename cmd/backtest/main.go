// Command backtest runs a strategy over historical bars from a CSV file or
// from Kite Connect and prints the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/backtest"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/barcache"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/report"
	"go.uber.org/zap"
)

type options struct {
	strategy   string
	configPath string
	barsFile   string
	token      int64
	from, to   string
	interval   string
	cachePath  string
	capital    float64
	closeAtEnd bool
	trades     bool
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.strategy, "strategy", "", "strategy YAML file (required)")
	flag.StringVar(&opts.configPath, "config", "", "optional config file providing the kite section")
	flag.StringVar(&opts.barsFile, "bars", "", "CSV file with timestamp,open,high,low,close,volume")
	flag.Int64Var(&opts.token, "token", 0, "Kite instrument token, used when -bars is not set")
	flag.StringVar(&opts.from, "from", "", "start date (YYYY-MM-DD) for -token")
	flag.StringVar(&opts.to, "to", "", "end date (YYYY-MM-DD) for -token, defaults to today")
	flag.StringVar(&opts.interval, "interval", "day", "candle interval for -token")
	flag.StringVar(&opts.cachePath, "cache", "", "SQLite file caching bars fetched with -token")
	flag.Float64Var(&opts.capital, "capital", backtest.DefaultStartingCapital, "starting capital")
	flag.BoolVar(&opts.closeAtEnd, "close-at-end", false, "close an open position on the last bar")
	flag.BoolVar(&opts.trades, "trades", false, "print every completed trade")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatalf("backtest: %v", err)
	}
}

func run(opts options) error {
	if opts.strategy == "" {
		return errors.New("-strategy is required")
	}
	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
	}
	defer logger.Sync()

	st, err := loadStrategy(opts.strategy)
	if err != nil {
		return err
	}
	cfg, err := backtest.ConfigFromStrategy(st, opts.capital, opts.closeAtEnd)
	if err != nil {
		return err
	}

	bars, source, err := loadBars(opts, logger)
	if err != nil {
		return err
	}

	res, err := backtest.NewSimulator(logger).Run(bars, cfg)
	if err != nil {
		return err
	}

	title := st.Name
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(opts.strategy), filepath.Ext(opts.strategy))
	}
	title = fmt.Sprintf("%s on %s (%d bars)", title, source, len(bars))
	if err := report.Summary(os.Stdout, title, res); err != nil {
		return err
	}
	if opts.trades {
		fmt.Println()
		return report.Trades(os.Stdout, res.Trades)
	}
	return nil
}

func loadBars(opts options, logger *zap.Logger) ([]model.PriceBar, string, error) {
	if opts.barsFile != "" {
		bars, err := loadBarsCSV(opts.barsFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load %s: %w", opts.barsFile, err)
		}
		return bars, filepath.Base(opts.barsFile), nil
	}
	if opts.token <= 0 {
		return nil, "", errors.New("either -bars or -token is required")
	}

	from, err := time.Parse("2006-01-02", opts.from)
	if err != nil {
		return nil, "", fmt.Errorf("invalid -from: %w", err)
	}
	to := time.Now().UTC()
	if opts.to != "" {
		if to, err = time.Parse("2006-01-02", opts.to); err != nil {
			return nil, "", fmt.Errorf("invalid -to: %w", err)
		}
	}

	kiteCfg, err := config.LoadKiteConfig(opts.configPath)
	if err != nil {
		return nil, "", err
	}
	session, err := kiteSession(kiteCfg)
	if err != nil {
		return nil, "", err
	}
	kite := client.NewKiteClient(kiteCfg, logger)

	var provider barcache.Provider = kite
	if opts.cachePath != "" {
		cache, err := barcache.Open(opts.cachePath, kite, logger)
		if err != nil {
			return nil, "", err
		}
		defer cache.Close()
		provider = cache
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bars, err := provider.HistoricalBars(ctx, session, opts.token, opts.interval, from, to)
	if err != nil {
		return nil, "", err
	}
	return bars, fmt.Sprintf("instrument %d", opts.token), nil
}

// kiteSession takes the credentials from kite.apiKey and kite.accessToken
func kiteSession(cfg config.KiteConfig) (client.Session, error) {
	session := client.Session{APIKey: cfg.APIKey, AccessToken: cfg.AccessToken}
	if session.APIKey == "" || session.AccessToken == "" {
		return client.Session{}, fmt.Errorf("kite.apiKey and kite.accessToken (KITE_APIKEY, KITE_ACCESSTOKEN) must be set: %w", client.ErrNoSession)
	}
	return session, nil
}
