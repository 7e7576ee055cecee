package validator

import (
	"errors"
	"fmt"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/shopspring/decimal"
)

type orderFields struct {
	Symbol    string `validate:"required,max=50"`
	Exchange  string `validate:"omitempty,oneof=NSE BSE NFO BFO MCX CDS"`
	OrderType string `validate:"omitempty,oneof=MARKET LIMIT SL SL-M"`
	Quantity  int    `validate:"gt=0"`
}

// ValidateOrder checks an order request for combinations the broker rejects.
func ValidateOrder(req *model.OrderRequest) error {
	if err := structError(validate.Struct(orderFields{
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		OrderType: req.OrderType,
		Quantity:  req.Quantity,
	})); err != nil {
		return err
	}

	if req.Price.IsNegative() {
		return errors.New("price cannot be negative")
	}
	if (req.OrderType == "LIMIT" || req.OrderType == "SL") && !req.Price.IsPositive() {
		return fmt.Errorf("%s orders require a price", req.OrderType)
	}

	ref := req.Price
	if ref.IsZero() {
		return nil
	}
	if req.StopLoss != nil {
		if err := checkLevel("stop loss", *req.StopLoss, ref, req.TradeType == model.TradeTypeBuy); err != nil {
			return err
		}
	}
	if req.Target != nil {
		if err := checkLevel("target", *req.Target, ref, req.TradeType != model.TradeTypeBuy); err != nil {
			return err
		}
	}
	return nil
}

// checkLevel requires level to be below ref when below is set, above otherwise.
func checkLevel(name string, level, ref decimal.Decimal, below bool) error {
	if below && !level.LessThan(ref) {
		return fmt.Errorf("%s %s must be below price %s", name, level, ref)
	}
	if !below && !level.GreaterThan(ref) {
		return fmt.Errorf("%s %s must be above price %s", name, level, ref)
	}
	return nil
}
