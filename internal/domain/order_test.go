package domain

import "testing"

func ptr(f float64) *float64 { return &f }

func TestOrder_Crosses(t *testing.T) {
	tests := []struct {
		name  string
		side  OrderSide
		limit *float64
		price float64
		want  bool
	}{
		{"market buy", OrderSideBuy, nil, 123.45, true},
		{"market sell", OrderSideSell, nil, 0.01, true},
		{"buy limit above price", OrderSideBuy, ptr(100), 99, true},
		{"buy limit at price", OrderSideBuy, ptr(100), 100, true},
		{"buy limit below price", OrderSideBuy, ptr(100), 100.01, false},
		{"sell limit below price", OrderSideSell, ptr(100), 101, true},
		{"sell limit at price", OrderSideSell, ptr(100), 100, true},
		{"sell limit above price", OrderSideSell, ptr(100), 99.99, false},
		{"unknown side", OrderSide("hold"), ptr(100), 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Side: tt.side, Price: tt.limit}
			if got := o.Crosses(tt.price); got != tt.want {
				t.Errorf("Crosses(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestOrder_IsFinal(t *testing.T) {
	for status, want := range map[OrderStatus]bool{
		OrderStatusPending:   false,
		OrderStatusFilled:    true,
		OrderStatusCancelled: true,
	} {
		o := &Order{Status: status}
		if got := o.IsFinal(); got != want {
			t.Errorf("IsFinal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestOrder_IsMarket(t *testing.T) {
	if !(&Order{}).IsMarket() {
		t.Error("order without price should be a market order")
	}
	if (&Order{Price: ptr(1)}).IsMarket() {
		t.Error("order with price should be a limit order")
	}
}
