package models

import "github.com/shopspring/decimal"

// DefaultStep is the fallback precision step used when a venue reports a
// missing or invalid value. Finest practical precision so orders round to
// something every venue accepts.
var DefaultStep = decimal.New(1, -8) // 0.00000001

// RoundToStep rounds value toward zero to a multiple of step. A zero or
// negative step is substituted with DefaultStep instead of failing.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		step = DefaultStep
	}
	return value.Div(step).Truncate(0).Mul(step)
}
