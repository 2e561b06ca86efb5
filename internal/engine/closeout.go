package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"alpharoyale/internal/core"
	"alpharoyale/pkg/positionmath"
)

// CloseOut settles an expired game: every pending order is rejected, every
// open position is closed and its proceeds credited, and the player with the
// highest final equity wins. Running it twice is harmless — the second pass
// finds nothing pending, nothing open and a completed game.
func (e *Engine) CloseOut(ctx context.Context, gameID string, now time.Time) error {
	unlock := e.lock(gameID)
	defer unlock()

	ctx, span := e.tracer.Start(ctx, "engine.CloseOut", trace.WithAttributes(
		attribute.String("game_id", gameID),
	))
	defer span.End()

	game, ok, err := e.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if !ok || game.Status != core.GameActive {
		return nil
	}

	orders, err := e.store.PendingOrders(ctx, gameID)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if err := e.reject(ctx, order, "game_ended"); err != nil {
			return err
		}
	}

	positions, err := e.store.OpenPositions(ctx, gameID)
	if err != nil {
		return err
	}
	proceeds := make(map[string]decimal.Decimal, 2)
	for _, pos := range positions {
		closePx := e.closePrice(ctx, pos)
		closed := core.PositionClosed
		realized := positionmath.RealizedOnClose(pos.EntryPrice, closePx, pos.Quantity)
		if err := e.store.UpdatePosition(ctx, pos.ID, core.PositionPatch{
			Status:        &closed,
			CurrentPrice:  &closePx,
			UnrealizedPnL: &realized,
		}); err != nil {
			return err
		}
		if pos.Side == core.SideBuy {
			proceeds[pos.PlayerID] = proceeds[pos.PlayerID].Add(positionmath.Notional(pos.Quantity, closePx))
		}
	}

	players, err := e.store.Players(ctx, gameID)
	if err != nil {
		return err
	}
	var winnerID string
	var best decimal.Decimal
	for i, player := range players {
		final := player.Balance.Add(proceeds[player.UserID])
		if err := e.store.UpdatePlayer(ctx, gameID, player.UserID, final, final); err != nil {
			return err
		}
		// ties go to the earlier joiner; Players returns join order
		if i == 0 || final.GreaterThan(best) {
			best = final
			winnerID = player.UserID
		}
	}

	if err := e.store.CompleteGame(ctx, gameID, now, winnerID); err != nil {
		return err
	}

	e.logger.Info("Game completed", "game_id", gameID, "winner_id", winnerID, "final_equity", best)
	return nil
}

// closePrice picks the settlement price for a position: the latest observed
// price for the symbol, falling back to the last mark and finally to the
// entry price when the symbol was never quoted.
func (e *Engine) closePrice(ctx context.Context, pos core.Position) decimal.Decimal {
	last, ok, err := e.store.LatestPrice(ctx, pos.Symbol)
	if err == nil && ok {
		return last.Price
	}
	if err != nil {
		e.logger.Warn("Close-out price lookup failed, falling back", "position_id", pos.ID, "symbol", pos.Symbol, "error", err)
	}
	if pos.CurrentPrice.Valid {
		return pos.CurrentPrice.Decimal
	}
	return pos.EntryPrice
}
