// Package signal maps indicator snapshots to entry and exit decisions using
// a fixed set of named rules.
package signal

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
)

// Fixed thresholds for the RSI rules.
const (
	OversoldLevel   = 30.0
	OverboughtLevel = 70.0
)

// Side tells whether a rule gates opening or closing a position.
type Side int

const (
	Entry Side = iota
	Exit
)

func (s Side) String() string {
	if s == Entry {
		return "entry"
	}
	return "exit"
}

// Rule is one named boolean condition over an indicator.Set.
type Rule string

const (
	RSIOversold        Rule = "rsi_oversold"
	SMACrossover       Rule = "sma_crossover"
	BollingerBounce    Rule = "bollinger_bounce"
	RSIOverbought      Rule = "rsi_overbought"
	SMACrossunder      Rule = "sma_crossunder"
	BollingerBreakdown Rule = "bollinger_breakdown"
)

var (
	ErrUnknownRule = errors.New("unknown rule")
	ErrWrongSide   = errors.New("rule used on the wrong side")
)

var ruleSides = map[Rule]Side{
	RSIOversold:        Entry,
	SMACrossover:       Entry,
	BollingerBounce:    Entry,
	RSIOverbought:      Exit,
	SMACrossunder:      Exit,
	BollingerBreakdown: Exit,
}

// ParseRule resolves a rule name.
func ParseRule(name string) (Rule, error) {
	r := Rule(name)
	if _, ok := ruleSides[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return r, nil
}

// Side returns the side the rule belongs to.
func (r Rule) Side() Side {
	return ruleSides[r]
}

// Evaluate reports whether the condition holds. Missing indicator readings
// make the rule fail.
func (r Rule) Evaluate(s indicator.Set) bool {
	met, _ := r.check(s)
	return met
}

// check returns whether the rule holds and, when it cannot be decided, the
// name of the missing reading.
func (r Rule) check(s indicator.Set) (bool, string) {
	switch r {
	case RSIOversold:
		rsi, ok := s.RSI.Get()
		if !ok {
			return false, "rsi"
		}
		return rsi <= OversoldLevel, ""

	case RSIOverbought:
		rsi, ok := s.RSI.Get()
		if !ok {
			return false, "rsi"
		}
		return rsi >= OverboughtLevel, ""

	case BollingerBounce:
		lower, ok := s.Bollinger.Lower.Get()
		if !ok {
			return false, "bollinger_lower"
		}
		return s.Close <= lower, ""

	case BollingerBreakdown:
		upper, ok := s.Bollinger.Upper.Get()
		if !ok {
			return false, "bollinger_upper"
		}
		return s.Close >= upper, ""

	case SMACrossover, SMACrossunder:
		fast, ok1 := s.FastSMA.Get()
		slow, ok2 := s.SlowSMA.Get()
		prevFast, ok3 := s.PrevFastSMA.Get()
		prevSlow, ok4 := s.PrevSlowSMA.Get()
		if !(ok1 && ok2 && ok3 && ok4) {
			return false, "fast_slow_sma"
		}
		if r == SMACrossover {
			return prevFast <= prevSlow && fast > slow, ""
		}
		return prevFast >= prevSlow && fast < slow, ""
	}
	return false, "unknown"
}

// FromFlags turns the persisted name->enabled map into the enabled rules
// for one side. Disabled flags are dropped; unknown names and rules that
// belong to the other side are errors.
func FromFlags(flags map[string]bool, side Side) ([]Rule, error) {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]Rule, 0, len(flags))
	for _, name := range names {
		r, err := ParseRule(name)
		if err != nil {
			return nil, err
		}
		if r.Side() != side {
			return nil, fmt.Errorf("%w: %s is an %s rule", ErrWrongSide, r, r.Side())
		}
		if flags[name] {
			rules = append(rules, r)
		}
	}
	return rules, nil
}
