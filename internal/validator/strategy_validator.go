package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/signal"
	govalidator "github.com/go-playground/validator/v10"
)

var validate = govalidator.New()

type strategyFields struct {
	Name         string   `validate:"required,min=3,max=100"`
	RiskPerTrade float64  `validate:"gt=0,lte=100"`
	PositionSize *float64 `validate:"omitempty,gt=0"`
}

// ValidateStrategy validates a complete strategy before it is stored or run.
func ValidateStrategy(st *model.Strategy) error {
	if err := structError(validate.Struct(strategyFields{
		Name:         st.Name,
		RiskPerTrade: st.RiskPerTrade,
		PositionSize: st.PositionSize,
	})); err != nil {
		return err
	}

	if _, err := signal.ConditionsFromFlags(st.EntryConditions, st.ExitConditions); err != nil {
		return err
	}

	if err := st.Indicators.Params().Validate(); err != nil {
		return err
	}

	return nil
}

// ValidateBacktestWindow checks the requested date range of a run.
func ValidateBacktestWindow(start, end time.Time) error {
	if start.IsZero() {
		return errors.New("start date is required")
	}
	if !end.After(start) {
		return errors.New("end date must be after start date")
	}
	return nil
}

// structError flattens validator errors into one readable message.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs govalidator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fieldName(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fieldName(fe.Field()), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldName turns RiskPerTrade into risk_per_trade.
func fieldName(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
