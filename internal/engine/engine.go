// Package engine runs the per-game tick pipeline: market fills, limit
// fills, mark-to-market, equity refresh, conditional orders and equity
// history, in that order.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"alpharoyale/internal/core"
	"alpharoyale/pkg/positionmath"
	"alpharoyale/pkg/telemetry"
)

// Engine executes tick pipelines. It is safe for concurrent use across
// games; runs for the same game are serialized by a per-game lock so an
// operator-triggered pass overlapping the timer chain cannot interleave.
type Engine struct {
	store   core.Store
	logger  core.ILogger
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder

	gameLocks sync.Map // gameID -> *sync.Mutex
}

// New creates a tick engine over the given store.
func New(store core.Store, logger core.ILogger) *Engine {
	return &Engine{
		store:   store,
		logger:  logger.WithField("component", "engine"),
		tracer:  telemetry.GetTracer("engine"),
		metrics: telemetry.GetGlobalMetrics(),
	}
}

func (e *Engine) lock(gameID string) func() {
	v, _ := e.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// RunTick processes one (game, tick) pair through all phases. The engine
// never caches state across ticks: every phase re-reads its inputs, which is
// what makes a replay after a crash safe — terminal orders are not
// re-evaluated, position merges absorb duplicate BUYs.
func (e *Engine) RunTick(ctx context.Context, gameID string, tick int64) error {
	unlock := e.lock(gameID)
	defer unlock()

	ctx, span := e.tracer.Start(ctx, "engine.RunTick", trace.WithAttributes(
		attribute.String("game_id", gameID),
		attribute.Int64("tick", tick),
	))
	defer span.End()

	phases := []struct {
		name string
		run  func(context.Context, string, int64) error
	}{
		{"market_orders", e.runMarketOrders},
		{"limit_orders", e.runLimitOrders},
		{"mark_to_market", e.markToMarket},
		{"equity_refresh", e.refreshEquity},
		{"conditional_orders", e.runConditionalOrders},
		{"equity_history", e.appendEquityHistory},
	}
	for _, phase := range phases {
		if err := phase.run(ctx, gameID, tick); err != nil {
			span.RecordError(err)
			return fmt.Errorf("phase %s: %w", phase.name, err)
		}
		span.AddEvent(phase.name)
	}
	return nil
}

// positionIndex tracks the open positions of a game during one phase,
// keyed by (player, symbol). Fill paths mutate it so later orders in the
// same phase observe the state produced by earlier ones.
type positionIndex map[string]core.Position

func posKey(playerID, symbol string) string {
	return playerID + "\x00" + symbol
}

func (e *Engine) loadPositionIndex(ctx context.Context, gameID string) (positionIndex, error) {
	positions, err := e.store.OpenPositions(ctx, gameID)
	if err != nil {
		return nil, err
	}
	idx := make(positionIndex, len(positions))
	for _, p := range positions {
		idx[posKey(p.PlayerID, p.Symbol)] = p
	}
	return idx, nil
}

// Phase A.
func (e *Engine) runMarketOrders(ctx context.Context, gameID string, tick int64) error {
	return e.runOrderPhase(ctx, gameID, tick, []core.OrderType{core.OrderTypeMarket},
		func(core.Order, decimal.Decimal) bool { return true })
}

// Phase B. A limit order triggers on the observed last price, inclusive on
// equality, and fills at that last price rather than the limit.
func (e *Engine) runLimitOrders(ctx context.Context, gameID string, tick int64) error {
	return e.runOrderPhase(ctx, gameID, tick, []core.OrderType{core.OrderTypeLimit},
		func(order core.Order, last decimal.Decimal) bool {
			if !order.Price.Valid {
				return false
			}
			limit := order.Price.Decimal
			if order.Side == core.SideBuy {
				return last.LessThanOrEqual(limit)
			}
			return last.GreaterThanOrEqual(limit)
		})
}

// runOrderPhase drives phases A and B: same fill paths, different trigger.
func (e *Engine) runOrderPhase(ctx context.Context, gameID string, tick int64, types []core.OrderType, triggered func(core.Order, decimal.Decimal) bool) error {
	orders, err := e.store.PendingOrders(ctx, gameID, types...)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	index, err := e.loadPositionIndex(ctx, gameID)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if !order.Quantity.Valid || !order.Quantity.Decimal.IsPositive() {
			if err := e.reject(ctx, order, "non_positive_quantity"); err != nil {
				return err
			}
			continue
		}

		last, ok, err := e.store.LatestPrice(ctx, order.Symbol)
		if err != nil {
			return err
		}
		if !ok {
			// no price this tick: the order stays pending
			continue
		}
		if !triggered(order, last.Price) {
			continue
		}

		switch order.Side {
		case core.SideBuy:
			err = e.fillBuy(ctx, order, order.Quantity.Decimal, last.Price, tick, index)
		case core.SideSell:
			err = e.fillSell(ctx, order, order.Quantity.Decimal, last.Price, tick, index)
		default:
			err = e.reject(ctx, order, "unknown_side")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fillBuy debits cash and creates or merges the player's position in the
// symbol. The merge keeps at most one open position per (player, symbol).
func (e *Engine) fillBuy(ctx context.Context, order core.Order, qty, price decimal.Decimal, tick int64, index positionIndex) error {
	player, ok, err := e.store.Player(ctx, order.GameID, order.PlayerID)
	if err != nil {
		return err
	}
	if !ok {
		return e.reject(ctx, order, "player_not_found")
	}

	cost := positionmath.Notional(qty, price)
	if player.Balance.LessThan(cost) {
		return e.reject(ctx, order, "insufficient_balance")
	}

	if err := e.store.MarkOrder(ctx, order.ID, core.OrderFilled, &price); err != nil {
		return err
	}
	if err := e.store.InsertExecution(ctx, core.Execution{
		OrderID:  order.ID,
		GameID:   order.GameID,
		PlayerID: order.PlayerID,
		Symbol:   order.Symbol,
		Side:     core.SideBuy,
		Quantity: qty,
		Price:    price,
		Tick:     tick,
	}); err != nil {
		return err
	}

	key := posKey(order.PlayerID, order.Symbol)
	if pos, exists := index[key]; exists {
		newQty := pos.Quantity.Add(qty)
		newEntry := positionmath.MergedEntry(pos.Quantity, pos.EntryPrice, qty, price)
		if err := e.store.UpdatePosition(ctx, pos.ID, core.PositionPatch{
			Quantity:     &newQty,
			EntryPrice:   &newEntry,
			CurrentPrice: &price,
		}); err != nil {
			return err
		}
		pos.Quantity = newQty
		pos.EntryPrice = newEntry
		pos.CurrentPrice = decimal.NewNullDecimal(price)
		index[key] = pos
	} else {
		// index the stored row: the store mints the id, and a later order in
		// this tick must patch the real row, not an id-less copy
		created, err := e.store.InsertPosition(ctx, core.Position{
			GameID:       order.GameID,
			PlayerID:     order.PlayerID,
			Symbol:       order.Symbol,
			Side:         core.SideBuy,
			Quantity:     qty,
			EntryPrice:   price,
			CurrentPrice: decimal.NewNullDecimal(price),
			Leverage:     decimal.NewFromInt(1),
			Status:       core.PositionOpen,
		})
		if err != nil {
			return err
		}
		index[key] = created
	}

	newBalance := player.Balance.Sub(cost)
	if err := e.recomputePlayer(ctx, order.GameID, order.PlayerID, newBalance); err != nil {
		return err
	}

	e.metrics.CountFill(ctx, order.Symbol, string(order.Type))
	e.logger.Info("Order filled", "order_id", order.ID, "game_id", order.GameID,
		"side", order.Side, "symbol", order.Symbol, "qty", qty, "price", price, "tick", tick)
	return nil
}

// fillSell credits cash against an existing BUY position, reducing or
// closing it. A SELL may never exceed the position's current quantity.
func (e *Engine) fillSell(ctx context.Context, order core.Order, qty, price decimal.Decimal, tick int64, index positionIndex) error {
	key := posKey(order.PlayerID, order.Symbol)
	pos, exists := index[key]
	if !exists || pos.Side != core.SideBuy {
		return e.reject(ctx, order, "no_open_position")
	}
	if pos.Quantity.LessThan(qty) {
		return e.reject(ctx, order, "position_too_small")
	}

	player, ok, err := e.store.Player(ctx, order.GameID, order.PlayerID)
	if err != nil {
		return err
	}
	if !ok {
		return e.reject(ctx, order, "player_not_found")
	}

	if err := e.store.MarkOrder(ctx, order.ID, core.OrderFilled, &price); err != nil {
		return err
	}
	if err := e.store.InsertExecution(ctx, core.Execution{
		OrderID:  order.ID,
		GameID:   order.GameID,
		PlayerID: order.PlayerID,
		Symbol:   order.Symbol,
		Side:     core.SideSell,
		Quantity: qty,
		Price:    price,
		Tick:     tick,
	}); err != nil {
		return err
	}

	if err := e.reducePosition(ctx, &pos, qty, price); err != nil {
		return err
	}
	if pos.Status == core.PositionOpen {
		index[key] = pos
	} else {
		delete(index, key)
	}

	newBalance := player.Balance.Add(positionmath.Notional(qty, price))
	if err := e.recomputePlayer(ctx, order.GameID, order.PlayerID, newBalance); err != nil {
		return err
	}

	e.metrics.CountFill(ctx, order.Symbol, string(order.Type))
	e.logger.Info("Order filled", "order_id", order.ID, "game_id", order.GameID,
		"side", order.Side, "symbol", order.Symbol, "qty", qty, "price", price, "tick", tick)
	return nil
}

// reducePosition shrinks a position by qty at the given price, closing it
// when the full quantity is sold. Closing stamps the realized PnL, without
// leverage.
func (e *Engine) reducePosition(ctx context.Context, pos *core.Position, qty, price decimal.Decimal) error {
	if pos.Quantity.Equal(qty) {
		closed := core.PositionClosed
		realized := positionmath.RealizedOnClose(pos.EntryPrice, price, qty)
		if err := e.store.UpdatePosition(ctx, pos.ID, core.PositionPatch{
			Status:        &closed,
			CurrentPrice:  &price,
			UnrealizedPnL: &realized,
		}); err != nil {
			return err
		}
		pos.Status = core.PositionClosed
		return nil
	}

	remaining := pos.Quantity.Sub(qty)
	if err := e.store.UpdatePosition(ctx, pos.ID, core.PositionPatch{
		Quantity:     &remaining,
		CurrentPrice: &price,
	}); err != nil {
		return err
	}
	pos.Quantity = remaining
	pos.CurrentPrice = decimal.NewNullDecimal(price)
	return nil
}

// Phase C. Mark every open position against the latest price. Leverage is
// honored here and only here.
func (e *Engine) markToMarket(ctx context.Context, gameID string, _ int64) error {
	positions, err := e.store.OpenPositions(ctx, gameID)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		last, ok, err := e.store.LatestPrice(ctx, pos.Symbol)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		pnl := positionmath.UnrealizedPnL(pos.Side, pos.EntryPrice, last.Price, pos.Quantity, pos.Leverage)
		if err := e.store.UpdatePosition(ctx, pos.ID, core.PositionPatch{
			CurrentPrice:  &last.Price,
			UnrealizedPnL: &pnl,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Phase D. Equity := balance + Σ unrealized PnL. Balance is owned by the
// fill paths and left untouched here.
func (e *Engine) refreshEquity(ctx context.Context, gameID string, _ int64) error {
	players, err := e.store.Players(ctx, gameID)
	if err != nil {
		return err
	}
	positions, err := e.store.OpenPositions(ctx, gameID)
	if err != nil {
		return err
	}

	pnlByPlayer := make(map[string]decimal.Decimal, len(players))
	for _, pos := range positions {
		pnlByPlayer[pos.PlayerID] = pnlByPlayer[pos.PlayerID].Add(pos.UnrealizedPnL)
	}
	for _, player := range players {
		equity := player.Balance.Add(pnlByPlayer[player.UserID])
		if err := e.store.UpdatePlayerEquity(ctx, gameID, player.UserID, equity); err != nil {
			return err
		}
	}
	return nil
}

// Phase E. Conditional orders run after mark-to-market so they observe the
// freshest prices, and last among order phases so a replayed re-fire after a
// crash has the smallest window.
func (e *Engine) runConditionalOrders(ctx context.Context, gameID string, tick int64) error {
	orders, err := e.store.PendingOrders(ctx, gameID, core.OrderTypeTakeProfit, core.OrderTypeStopLoss)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	positions, err := e.store.OpenPositions(ctx, gameID)
	if err != nil {
		return err
	}
	byID := make(map[string]core.Position, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}

	for _, order := range orders {
		if order.PositionID == nil {
			if err := e.reject(ctx, order, "missing_position_ref"); err != nil {
				return err
			}
			continue
		}
		pos, open := byID[*order.PositionID]
		if !open || pos.Side != core.SideBuy || pos.Symbol != order.Symbol {
			if err := e.reject(ctx, order, "position_not_open"); err != nil {
				return err
			}
			continue
		}
		if !order.TriggerPrice.Valid {
			if err := e.reject(ctx, order, "missing_trigger"); err != nil {
				return err
			}
			continue
		}

		last, ok, err := e.store.LatestPrice(ctx, order.Symbol)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		trigger := order.TriggerPrice.Decimal
		fired := false
		switch order.Type {
		case core.OrderTypeTakeProfit:
			fired = last.Price.GreaterThanOrEqual(trigger)
		case core.OrderTypeStopLoss:
			fired = last.Price.LessThanOrEqual(trigger)
		}
		if !fired {
			continue
		}

		// null quantity means "the full position at trigger time"
		execQty := pos.Quantity
		if order.Quantity.Valid {
			execQty = order.Quantity.Decimal
		}
		if !execQty.IsPositive() || execQty.GreaterThan(pos.Quantity) {
			if err := e.reject(ctx, order, "quantity_exceeds_position"); err != nil {
				return err
			}
			continue
		}

		if err := e.fireConditional(ctx, order, pos, execQty, last.Price, tick); err != nil {
			return err
		}
		if pos.Quantity.Equal(execQty) {
			delete(byID, pos.ID)
		} else {
			pos.Quantity = pos.Quantity.Sub(execQty)
			byID[pos.ID] = pos
		}
	}
	return nil
}

func (e *Engine) fireConditional(ctx context.Context, order core.Order, pos core.Position, qty, price decimal.Decimal, tick int64) error {
	player, ok, err := e.store.Player(ctx, order.GameID, order.PlayerID)
	if err != nil {
		return err
	}
	if !ok {
		return e.reject(ctx, order, "player_not_found")
	}

	if err := e.store.MarkOrder(ctx, order.ID, core.OrderFilled, &price); err != nil {
		return err
	}
	if err := e.store.InsertExecution(ctx, core.Execution{
		OrderID:  order.ID,
		GameID:   order.GameID,
		PlayerID: order.PlayerID,
		Symbol:   order.Symbol,
		Side:     core.SideSell,
		Quantity: qty,
		Price:    price,
		Tick:     tick,
	}); err != nil {
		return err
	}
	if err := e.reducePosition(ctx, &pos, qty, price); err != nil {
		return err
	}

	newBalance := player.Balance.Add(positionmath.Notional(qty, price))
	if err := e.recomputePlayer(ctx, order.GameID, order.PlayerID, newBalance); err != nil {
		return err
	}

	e.metrics.CountFill(ctx, order.Symbol, string(order.Type))
	e.logger.Info("Conditional order fired", "order_id", order.ID, "game_id", order.GameID,
		"type", order.Type, "symbol", order.Symbol, "qty", qty, "price", price, "tick", tick)
	return nil
}

// Phase F.
func (e *Engine) appendEquityHistory(ctx context.Context, gameID string, tick int64) error {
	players, err := e.store.Players(ctx, gameID)
	if err != nil {
		return err
	}
	for _, player := range players {
		if err := e.store.InsertEquityHistory(ctx, core.EquityPoint{
			GameID:   gameID,
			PlayerID: player.UserID,
			Tick:     tick,
			Balance:  player.Balance,
			Equity:   player.Equity,
		}); err != nil {
			return err
		}
	}
	return nil
}

// recomputePlayer writes a new balance together with the equity derived
// from it, so equity stays consistent with cash without waiting for the
// refresh phase.
func (e *Engine) recomputePlayer(ctx context.Context, gameID, playerID string, newBalance decimal.Decimal) error {
	positions, err := e.store.OpenPositions(ctx, gameID)
	if err != nil {
		return err
	}
	var mine []core.Position
	for _, pos := range positions {
		if pos.PlayerID == playerID {
			mine = append(mine, pos)
		}
	}
	equity := positionmath.Equity(newBalance, mine)
	return e.store.UpdatePlayer(ctx, gameID, playerID, newBalance, equity)
}

// reject moves an order to its terminal rejected state. Invariant
// violations are order outcomes, not errors: the tick carries on.
func (e *Engine) reject(ctx context.Context, order core.Order, reason string) error {
	if err := e.store.MarkOrder(ctx, order.ID, core.OrderRejected, nil); err != nil {
		return err
	}
	e.metrics.CountRejection(ctx, order.Symbol, reason)
	e.logger.Info("Order rejected", "order_id", order.ID, "game_id", order.GameID,
		"type", order.Type, "side", order.Side, "reason", reason)
	return nil
}
