package positionmath

import (
	"testing"

	"github.com/shopspring/decimal"

	"alpharoyale/internal/core"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestMergedEntry(t *testing.T) {
	tests := []struct {
		name                       string
		oldQty, oldEntry, qty, px  string
		want                       string
	}{
		{"equal sizes average", "0.1", "50000", "0.1", "60000", "55000"},
		{"same price keeps entry", "0.2", "51000", "0.3", "51000", "51000"},
		{"weighted toward larger leg", "0.3", "100", "0.1", "200", "125"},
		{"empty position takes fill price", "0", "0", "1", "3000", "3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergedEntry(d(tt.oldQty), d(tt.oldEntry), d(tt.qty), d(tt.px))
			if !got.Equal(d(tt.want)) {
				t.Errorf("MergedEntry = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMergedEntry_ZeroTotalQuantity(t *testing.T) {
	got := MergedEntry(d("0"), d("100"), d("0"), d("200"))
	if !got.IsZero() {
		t.Errorf("expected zero entry for zero total quantity, got %s", got)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	tests := []struct {
		name                       string
		side                       core.Side
		entry, last, qty, leverage string
		want                       string
	}{
		{"buy gains on rise", core.SideBuy, "50000", "55000", "0.2", "1", "1000"},
		{"buy loses on drop", core.SideBuy, "50000", "48000", "0.5", "1", "-1000"},
		{"sell mirrors buy", core.SideSell, "50000", "48000", "0.5", "1", "1000"},
		{"leverage scales the mark", core.SideBuy, "3000", "3100", "2", "5", "1000"},
		{"flat price is flat", core.SideBuy, "100", "100", "10", "3", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnrealizedPnL(tt.side, d(tt.entry), d(tt.last), d(tt.qty), d(tt.leverage))
			if !got.Equal(d(tt.want)) {
				t.Errorf("UnrealizedPnL = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUnrealizedPnL_UnknownSideIsZero(t *testing.T) {
	got := UnrealizedPnL(core.Side("HOLD"), d("100"), d("200"), d("1"), d("1"))
	if !got.IsZero() {
		t.Errorf("expected zero PnL for unknown side, got %s", got)
	}
}

func TestRealizedOnClose_IgnoresLeverage(t *testing.T) {
	got := RealizedOnClose(d("51000"), d("55100"), d("0.2"))
	if !got.Equal(d("820")) {
		t.Errorf("RealizedOnClose = %s, want 820", got)
	}
}

func TestEquity_SumsOpenPositionsOnly(t *testing.T) {
	balance := d("5000")
	positions := []core.Position{
		{Status: core.PositionOpen, UnrealizedPnL: d("250")},
		{Status: core.PositionOpen, UnrealizedPnL: d("-100")},
		{Status: core.PositionClosed, UnrealizedPnL: d("9999")},
	}

	got := Equity(balance, positions)
	if !got.Equal(d("5150")) {
		t.Errorf("Equity = %s, want 5150", got)
	}
}

func TestNotional(t *testing.T) {
	if got := Notional(d("0.1"), d("50000")); !got.Equal(d("5000")) {
		t.Errorf("Notional = %s, want 5000", got)
	}
}
