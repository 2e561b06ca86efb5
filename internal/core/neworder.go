package core

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "alpharoyale/pkg/errors"
)

// NewOrder is the order-intake payload accepted by Store.SubmitOrder.
// Non-finite numbers never reach this struct: decimal parsing rejects them
// at the transport boundary, so validation here only enforces range and
// shape rules.
type NewOrder struct {
	GameID       string
	PlayerID     string
	Symbol       string
	Type         OrderType
	Side         Side
	Quantity     *decimal.Decimal // required for MARKET/LIMIT, optional for TP/SL
	Price        *decimal.Decimal // required for LIMIT
	TriggerPrice *decimal.Decimal // required for TP/SL
	PositionID   string           // required for TP/SL
}

// Validate enforces the ingest rules. Violations wrap ErrValidationFailure
// and keep the order out of the engine entirely.
func (r NewOrder) Validate() error {
	if r.GameID == "" || r.PlayerID == "" {
		return fmt.Errorf("%w: game_id and player_id are required", apperrors.ErrValidationFailure)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", apperrors.ErrValidationFailure)
	}
	switch r.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("%w: invalid side %q", apperrors.ErrValidationFailure, r.Side)
	}
	if r.Quantity != nil && !r.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", apperrors.ErrValidationFailure)
	}

	switch r.Type {
	case OrderTypeMarket:
		if r.Quantity == nil {
			return fmt.Errorf("%w: market order requires quantity", apperrors.ErrValidationFailure)
		}
	case OrderTypeLimit:
		if r.Quantity == nil {
			return fmt.Errorf("%w: limit order requires quantity", apperrors.ErrValidationFailure)
		}
		if r.Price == nil || !r.Price.IsPositive() {
			return fmt.Errorf("%w: limit order requires a positive price", apperrors.ErrValidationFailure)
		}
	case OrderTypeTakeProfit, OrderTypeStopLoss:
		if r.Side != SideSell {
			return fmt.Errorf("%w: conditional orders close BUY positions and must be SELL", apperrors.ErrValidationFailure)
		}
		if r.TriggerPrice == nil || !r.TriggerPrice.IsPositive() {
			return fmt.Errorf("%w: conditional order requires a positive trigger price", apperrors.ErrValidationFailure)
		}
		if r.PositionID == "" {
			return fmt.Errorf("%w: conditional order requires position_id", apperrors.ErrValidationFailure)
		}
	default:
		return fmt.Errorf("%w: invalid order type %q", apperrors.ErrValidationFailure, r.Type)
	}

	return nil
}
