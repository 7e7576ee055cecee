// Package indicator computes moving averages, RSI and Bollinger Bands over a
// close-price series. Every output is positional: element i describes the
// series up to and including closes[i], and is absent until enough history
// has accumulated.
package indicator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned by Compute when a window or multiplier is out of range.
var ErrInvalidParams = errors.New("invalid indicator parameters")

// Params holds the window sizes used by Compute.
type Params struct {
	SMAWindow       int     `json:"sma_window" yaml:"sma_window"`
	EMAWindow       int     `json:"ema_window" yaml:"ema_window"`
	RSIPeriod       int     `json:"rsi_period" yaml:"rsi_period"`
	BollingerWindow int     `json:"bollinger_window" yaml:"bollinger_window"`
	BollingerStdDev float64 `json:"bollinger_std_dev" yaml:"bollinger_std_dev"`
	FastWindow      int     `json:"fast_window" yaml:"fast_window"`
	SlowWindow      int     `json:"slow_window" yaml:"slow_window"`
}

// DefaultParams returns SMA/EMA 20, RSI 14, Bollinger 20x2 and a 20/50 crossover pair.
func DefaultParams() Params {
	return Params{
		SMAWindow:       20,
		EMAWindow:       20,
		RSIPeriod:       14,
		BollingerWindow: 20,
		BollingerStdDev: 2,
		FastWindow:      20,
		SlowWindow:      50,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.SMAWindow == 0 {
		p.SMAWindow = d.SMAWindow
	}
	if p.EMAWindow == 0 {
		p.EMAWindow = d.EMAWindow
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.BollingerWindow == 0 {
		p.BollingerWindow = d.BollingerWindow
	}
	if p.BollingerStdDev == 0 {
		p.BollingerStdDev = d.BollingerStdDev
	}
	if p.FastWindow == 0 {
		p.FastWindow = d.FastWindow
	}
	if p.SlowWindow == 0 {
		p.SlowWindow = d.SlowWindow
	}
	return p
}

// Validate checks that every window is usable.
func (p Params) Validate() error {
	switch {
	case p.SMAWindow < 1:
		return fmt.Errorf("%w: sma window must be positive, got %d", ErrInvalidParams, p.SMAWindow)
	case p.EMAWindow < 1:
		return fmt.Errorf("%w: ema window must be positive, got %d", ErrInvalidParams, p.EMAWindow)
	case p.RSIPeriod < 1:
		return fmt.Errorf("%w: rsi period must be positive, got %d", ErrInvalidParams, p.RSIPeriod)
	case p.BollingerWindow < 2:
		return fmt.Errorf("%w: bollinger window must be at least 2, got %d", ErrInvalidParams, p.BollingerWindow)
	case p.BollingerStdDev <= 0:
		return fmt.Errorf("%w: bollinger multiplier must be positive, got %g", ErrInvalidParams, p.BollingerStdDev)
	case p.FastWindow < 1 || p.SlowWindow < 1:
		return fmt.Errorf("%w: crossover windows must be positive, got %d/%d", ErrInvalidParams, p.FastWindow, p.SlowWindow)
	case p.FastWindow >= p.SlowWindow:
		return fmt.Errorf("%w: fast window %d must be shorter than slow window %d", ErrInvalidParams, p.FastWindow, p.SlowWindow)
	}
	return nil
}

// Band is one Bollinger reading.
type Band struct {
	Upper  Value `json:"upper"`
	Middle Value `json:"middle"`
	Lower  Value `json:"lower"`
}

// Set is the indicator snapshot for a single bar.
type Set struct {
	Close     float64 `json:"close"`
	SMA       Value   `json:"sma"`
	EMA       Value   `json:"ema"`
	RSI       Value   `json:"rsi"`
	Bollinger Band    `json:"bollinger"`

	// Crossover inputs: fast/slow SMA on this bar and on the previous one.
	FastSMA     Value `json:"fast_sma"`
	SlowSMA     Value `json:"slow_sma"`
	PrevFastSMA Value `json:"prev_fast_sma"`
	PrevSlowSMA Value `json:"prev_slow_sma"`
}

// SMA returns the trailing arithmetic mean for each position.
// A non-positive window yields an all-absent series.
func SMA(closes []float64, window int) []Value {
	out := make([]Value, len(closes))
	if window < 1 {
		return out
	}
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = Some(sum / float64(window))
		}
	}
	return out
}

// EMA returns the exponential moving average with alpha = 2/(window+1),
// seeded with the simple mean of the first window.
func EMA(closes []float64, window int) []Value {
	out := make([]Value, len(closes))
	if window < 1 || len(closes) < window {
		return out
	}
	alpha := 2.0 / float64(window+1)

	var seed float64
	for _, c := range closes[:window] {
		seed += c
	}
	ema := seed / float64(window)
	out[window-1] = Some(ema)

	for i := window; i < len(closes); i++ {
		ema = alpha*closes[i] + (1-alpha)*ema
		out[i] = Some(ema)
	}
	return out
}

// RSI returns the relative strength index using simple rolling means of
// gains and losses over the trailing period changes. Positions where the
// average loss is zero are absent.
func RSI(closes []float64, period int) []Value {
	out := make([]Value, len(closes))
	if period < 1 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}
		avgLoss := lossSum / float64(period)
		// rolling subtraction can leave tiny residue
		if avgLoss <= 1e-12 {
			continue
		}
		avgGain := math.Max(gainSum/float64(period), 0)
		rs := avgGain / avgLoss
		out[i] = Some(100 - 100/(1+rs))
	}
	return out
}

// Bollinger returns SMA ± k sample standard deviations over the window.
func Bollinger(closes []float64, window int, k float64) []Band {
	out := make([]Band, len(closes))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(closes); i++ {
		win := closes[i-window+1 : i+1]
		mean, sd := meanStd(win)
		out[i] = Band{
			Upper:  Some(mean + k*sd),
			Middle: Some(mean),
			Lower:  Some(mean - k*sd),
		}
	}
	return out
}

// Compute returns one Set per close.
func Compute(closes []float64, p Params) ([]Set, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sma := SMA(closes, p.SMAWindow)
	ema := EMA(closes, p.EMAWindow)
	rsi := RSI(closes, p.RSIPeriod)
	bb := Bollinger(closes, p.BollingerWindow, p.BollingerStdDev)
	fast := SMA(closes, p.FastWindow)
	slow := SMA(closes, p.SlowWindow)

	sets := make([]Set, len(closes))
	for i, c := range closes {
		s := Set{
			Close:     c,
			SMA:       sma[i],
			EMA:       ema[i],
			RSI:       rsi[i],
			Bollinger: bb[i],
			FastSMA:   fast[i],
			SlowSMA:   slow[i],
		}
		if i > 0 {
			s.PrevFastSMA = fast[i-1]
			s.PrevSlowSMA = slow[i-1]
		}
		sets[i] = s
	}
	return sets, nil
}

// Latest computes the Set for the last close only. An empty series yields an empty Set.
func Latest(closes []float64, p Params) (Set, error) {
	sets, err := Compute(closes, p)
	if err != nil {
		return Set{}, err
	}
	if len(sets) == 0 {
		return Set{}, nil
	}
	return sets[len(sets)-1], nil
}

func meanStd(xs []float64) (mean, sd float64) {
	n := float64(len(xs))
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}
