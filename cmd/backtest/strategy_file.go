package main

import (
	"fmt"
	"os"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"gopkg.in/yaml.v3"
)

// strategyFile is the YAML form of a strategy:
//
//	name: Golden cross
//	entry:
//	  sma_crossover: true
//	exit:
//	  sma_crossunder: true
//	risk_per_trade: 1
//	indicators:
//	  fast_window: 20
//	  slow_window: 50
type strategyFile struct {
	Name         string           `yaml:"name"`
	Entry        map[string]bool  `yaml:"entry"`
	Exit         map[string]bool  `yaml:"exit"`
	RiskPerTrade float64          `yaml:"risk_per_trade"`
	PositionSize *float64         `yaml:"position_size"`
	Indicators   indicator.Params `yaml:"indicators"`
}

func loadStrategy(path string) (*model.Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}

	var f strategyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file %s: %w", path, err)
	}
	if f.RiskPerTrade == 0 && f.PositionSize == nil {
		f.RiskPerTrade = 1
	}

	return &model.Strategy{
		Name:            f.Name,
		EntryConditions: model.Conditions(f.Entry),
		ExitConditions:  model.Conditions(f.Exit),
		RiskPerTrade:    f.RiskPerTrade,
		PositionSize:    f.PositionSize,
		Indicators:      model.IndicatorSettings(f.Indicators),
	}, nil
}
