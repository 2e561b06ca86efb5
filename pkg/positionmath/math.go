// Package positionmath provides decimal arithmetic for positions and fills.
package positionmath

import (
	"github.com/shopspring/decimal"

	"alpharoyale/internal/core"
)

// Notional computes the cash value of a fill. Leverage is deliberately not
// part of this: fill paths and cash math treat notional as qty*price, and
// leverage is honored only by mark-to-market.
func Notional(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price)
}

// MergedEntry combines an existing position with an additional BUY into the
// weighted-average entry price: (oldQty*oldEntry + qty*price) / (oldQty+qty).
func MergedEntry(oldQty, oldEntry, qty, price decimal.Decimal) decimal.Decimal {
	newQty := oldQty.Add(qty)
	if newQty.IsZero() {
		return decimal.Zero
	}
	return oldQty.Mul(oldEntry).Add(qty.Mul(price)).Div(newQty)
}

// UnrealizedPnL marks a position against the latest price. BUY gains when
// price rises, SELL mirrors it; an unknown side yields zero. This is the one
// place leverage is read.
func UnrealizedPnL(side core.Side, entry, last, qty, leverage decimal.Decimal) decimal.Decimal {
	switch side {
	case core.SideBuy:
		return last.Sub(entry).Mul(qty).Mul(leverage)
	case core.SideSell:
		return entry.Sub(last).Mul(qty).Mul(leverage)
	default:
		return decimal.Zero
	}
}

// RealizedOnClose is the PnL stamped onto a position closed by a conditional
// fill or game close-out: (close - entry) * qty, without leverage.
func RealizedOnClose(entry, closePx, qty decimal.Decimal) decimal.Decimal {
	return closePx.Sub(entry).Mul(qty)
}

// Equity is a player's cash balance plus the unrealized PnL over their open
// positions.
func Equity(balance decimal.Decimal, positions []core.Position) decimal.Decimal {
	equity := balance
	for _, pos := range positions {
		if pos.Status != core.PositionOpen {
			continue
		}
		equity = equity.Add(pos.UnrealizedPnL)
	}
	return equity
}
