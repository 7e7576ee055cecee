package model

import (
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
)

// PriceBar represents one OHLCV observation
type PriceBar struct {
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// Closes extracts the close prices of a bar sequence
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// IndicatorPoint pairs a bar with its indicator readings
type IndicatorPoint struct {
	PriceBar
	Indicators indicator.Set `json:"indicators"`
}
