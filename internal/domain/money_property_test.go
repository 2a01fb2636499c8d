package domain

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

// Property: a buy debits exactly price×amount×1.001 and a sell credits
// exactly price×amount×0.999.

func TestProperty_SettlementConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		price := rapid.Float64Range(0.01, 10_000).Draw(t, "price")
		amount := rapid.Float64Range(0.0001, 10_000).Draw(t, "amount")

		s := Settle(price, amount)
		buy := s.BuyCost().InexactFloat64()
		sell := s.SellProceeds().InexactFloat64()

		wantBuy := price * amount * 1.001
		wantSell := price * amount * 0.999
		tol := 1e-9 * math.Max(1, wantBuy)

		if math.Abs(buy-wantBuy) > tol {
			t.Fatalf("BuyCost = %v, want %v", buy, wantBuy)
		}
		if math.Abs(sell-wantSell) > tol {
			t.Fatalf("SellProceeds = %v, want %v", sell, wantSell)
		}
		if !s.Fee.IsPositive() {
			t.Fatalf("fee must be positive, got %s", s.Fee)
		}
	})
}

func TestProperty_DebitThenCreditRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Float64Range(0, 1_000_000).Draw(t, "balance")
		price := rapid.Float64Range(0.01, 1_000).Draw(t, "price")
		amount := rapid.Float64Range(0.01, 100).Draw(t, "amount")

		cost := Settle(price, amount).BuyCost()
		got := Credit(Debit(balance, cost), cost)
		if math.Abs(got-balance) > 1e-9*math.Max(1, balance) {
			t.Fatalf("debit/credit drifted: %v -> %v", balance, got)
		}
	})
}
