package domain

import "github.com/shopspring/decimal"

// FeeRate is the fee charged on the notional of every execution (0.1%).
var FeeRate = decimal.RequireFromString("0.001")

// Settlement holds the monetary breakdown of a single execution.
type Settlement struct {
	Notional decimal.Decimal // price × amount
	Fee      decimal.Decimal // Notional × FeeRate
}

// Settle computes the notional and fee for executing amount units at price.
func Settle(price, amount float64) Settlement {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(amount))
	return Settlement{
		Notional: notional,
		Fee:      notional.Mul(FeeRate),
	}
}

// BuyCost is the total debit for a buy: notional plus fee.
func (s Settlement) BuyCost() decimal.Decimal {
	return s.Notional.Add(s.Fee)
}

// SellProceeds is the total credit for a sell: notional minus fee.
func (s Settlement) SellProceeds() decimal.Decimal {
	return s.Notional.Sub(s.Fee)
}

// Covers reports whether balance is large enough to pay amount.
func Covers(balance float64, amount decimal.Decimal) bool {
	return decimal.NewFromFloat(balance).GreaterThanOrEqual(amount)
}

// Debit subtracts amount from balance using decimal arithmetic so repeated
// settlements do not accumulate binary floating-point drift.
func Debit(balance float64, amount decimal.Decimal) float64 {
	return decimal.NewFromFloat(balance).Sub(amount).InexactFloat64()
}

// Credit adds amount to balance.
func Credit(balance float64, amount decimal.Decimal) float64 {
	return decimal.NewFromFloat(balance).Add(amount).InexactFloat64()
}

// AddQuantity and SubQuantity adjust a holding amount with the same
// arithmetic as balances.
func AddQuantity(have, delta float64) float64 {
	return decimal.NewFromFloat(have).Add(decimal.NewFromFloat(delta)).InexactFloat64()
}

func SubQuantity(have, delta float64) float64 {
	return decimal.NewFromFloat(have).Sub(decimal.NewFromFloat(delta)).InexactFloat64()
}
