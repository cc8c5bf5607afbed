package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTickMid(t *testing.T) {
	tick := Tick{Bid: dec("1.1000"), Ask: dec("1.1002")}
	if !tick.Mid().Equal(dec("1.1001")) {
		t.Errorf("Mid() = %s, want 1.1001", tick.Mid())
	}
}

func TestTickValidate(t *testing.T) {
	cases := []struct {
		name    string
		tick    Tick
		wantErr bool
	}{
		{"valid", Tick{Bid: dec("1.10"), Ask: dec("1.11")}, false},
		{"zero bid", Tick{Bid: dec("0"), Ask: dec("1.11")}, true},
		{"negative bid", Tick{Bid: dec("-1"), Ask: dec("1.11")}, true},
		{"ask below bid", Tick{Bid: dec("1.11"), Ask: dec("1.10")}, true},
		{"equal bid ask", Tick{Bid: dec("1.10"), Ask: dec("1.10")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tick.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestBarUpdateWithTick(t *testing.T) {
	b := &Bar{Open: dec("1.10"), High: dec("1.10"), Low: dec("1.10"), Close: dec("1.10")}
	b.UpdateWithTick(dec("1.12"), dec("5"))
	if !b.High.Equal(dec("1.12")) {
		t.Errorf("High = %s, want 1.12", b.High)
	}
	if !b.Close.Equal(dec("1.12")) {
		t.Errorf("Close = %s, want 1.12", b.Close)
	}
	b.UpdateWithTick(dec("1.05"), dec("3"))
	if !b.Low.Equal(dec("1.05")) {
		t.Errorf("Low = %s, want 1.05", b.Low)
	}
	if b.TickCount != 2 {
		t.Errorf("TickCount = %d, want 2", b.TickCount)
	}
	if !b.Volume.Equal(dec("8")) {
		t.Errorf("Volume = %s, want 8", b.Volume)
	}
}

func TestInvalidTickErrorMessage(t *testing.T) {
	tick := Tick{Timestamp: time.Now(), Bid: dec("0")}
	err := tick.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	var ite *InvalidTickError
	if e, ok := err.(*InvalidTickError); ok {
		ite = e
	} else {
		t.Fatalf("expected *InvalidTickError, got %T", err)
	}
	if ite.Reason == "" {
		t.Error("expected a non-empty reason")
	}
}
