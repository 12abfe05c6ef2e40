// Package currency converts amounts between an account's ledger currency and
// the currency named in a request.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// RateProvider returns rates as units of each currency per one USD.
type RateProvider interface {
	Rates(ctx context.Context) (map[string]decimal.Decimal, error)
}

type Converter struct {
	provider RateProvider
}

func NewConverter(provider RateProvider) *Converter {
	return &Converter{provider: provider}
}

// Convert returns amount expressed in to, rounded to its precision.
// Amounts in the same currency are returned untouched.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = Normalize(from), Normalize(to)
	if from == to || from == "" || to == "" {
		return amount, nil
	}

	rates, err := c.provider.Rates(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rates: %w", err)
	}

	fromRate, ok := rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	toRate, ok := rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}

	return Round(amount.Mul(toRate).Div(fromRate), to)
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func Precision(code string) int32 {
	switch Normalize(code) {
	case "BTC":
		return 8
	case "JPY", "KRW":
		return 0
	default:
		return 2
	}
}

var maxSatoshi = decimal.NewFromInt(btcutil.MaxSatoshi)

// Round rounds amount to the precision of code. BTC amounts become a whole
// number of satoshi and may not exceed the 21M BTC supply.
func Round(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	if Normalize(code) == "BTC" {
		sat := amount.Round(8).Shift(8)
		if sat.Abs().GreaterThan(maxSatoshi) {
			return decimal.Zero, fmt.Errorf("invalid BTC amount %s: above %s", amount, btcutil.Amount(btcutil.MaxSatoshi))
		}
		return decimal.New(int64(btcutil.Amount(sat.IntPart())), -8), nil
	}
	return amount.Round(Precision(code)), nil
}

// Format renders amount the way balances appear on the wire.
func Format(amount decimal.Decimal, code string) string {
	return amount.StringFixed(Precision(code))
}
