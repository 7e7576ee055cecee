package signal

import (
	"fmt"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"go.uber.org/zap"
)

// Conditions holds the enabled rules for each side of a strategy.
type Conditions struct {
	Entry []Rule
	Exit  []Rule
}

// ConditionsFromFlags parses both sides of a strategy's rule flags.
func ConditionsFromFlags(entry, exit map[string]bool) (Conditions, error) {
	in, err := FromFlags(entry, Entry)
	if err != nil {
		return Conditions{}, fmt.Errorf("invalid entry conditions: %w", err)
	}
	out, err := FromFlags(exit, Exit)
	if err != nil {
		return Conditions{}, fmt.Errorf("invalid exit conditions: %w", err)
	}
	return Conditions{Entry: in, Exit: out}, nil
}

// Generator evaluates rule lists and logs rules that could not be decided.
type Generator struct {
	logger *zap.Logger
}

// NewGenerator creates a new signal generator
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// ShouldEnter reports whether every configured entry rule holds.
// An empty rule list is satisfied.
func (g *Generator) ShouldEnter(c Conditions, s indicator.Set) bool {
	return g.all(c.Entry, s)
}

// ShouldExit reports whether every configured exit rule holds.
// An empty rule list is satisfied.
func (g *Generator) ShouldExit(c Conditions, s indicator.Set) bool {
	return g.all(c.Exit, s)
}

func (g *Generator) all(rules []Rule, s indicator.Set) bool {
	for _, r := range rules {
		met, missing := r.check(s)
		if missing != "" {
			g.logger.Debug("Rule skipped, indicator not available",
				zap.String("rule", string(r)),
				zap.String("indicator", missing))
			return false
		}
		if !met {
			return false
		}
	}
	return true
}
