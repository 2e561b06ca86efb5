package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"alpharoyale/internal/config"
	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
)

// Memory implements core.Store with mutex-guarded maps. It backs the unit
// and e2e suites and is available as an explicit driver for throwaway runs.
type Memory struct {
	mu sync.RWMutex

	bounds   config.DurationBounds
	notifier core.Notifier

	state      core.GameState
	games      map[string]core.Game
	players    map[string][]core.GamePlayer // gameID -> players in join order
	positions  map[string]core.Position     // positionID -> position
	orders     map[string]core.Order        // orderID -> order
	executions []core.Execution
	prices     []core.PricePoint
	equity     map[string]core.EquityPoint // gameID/playerID/tick -> point
}

// NewMemory builds an empty in-memory store.
func NewMemory(bounds config.DurationBounds, notifier core.Notifier) *Memory {
	return &Memory{
		bounds:    bounds,
		notifier:  notifier,
		games:     make(map[string]core.Game),
		players:   make(map[string][]core.GamePlayer),
		positions: make(map[string]core.Position),
		orders:    make(map[string]core.Order),
		equity:    make(map[string]core.EquityPoint),
	}
}

func (m *Memory) publish(table, action, gameID string, tick int64) {
	if m.notifier == nil {
		return
	}
	m.notifier.Publish(core.Change{Table: table, Action: action, GameID: gameID, Tick: tick})
}

// --- prices ---

func (m *Memory) LatestPrice(_ context.Context, symbol string) (core.PricePoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest core.PricePoint
	found := false
	for _, p := range m.prices {
		if p.Symbol != symbol {
			continue
		}
		if !found || !p.At.Before(latest.At) {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

func (m *Memory) InsertPrice(_ context.Context, symbol string, price decimal.Decimal, tick int64) error {
	m.mu.Lock()
	m.prices = append(m.prices, core.PricePoint{Symbol: symbol, Price: price, Tick: tick, At: time.Now().UTC()})
	m.mu.Unlock()
	m.publish("price_data", core.ChangeInsert, "", tick)
	return nil
}

// --- global tick counter ---

func (m *Memory) ReadGameState(_ context.Context) (core.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

func (m *Memory) AdvanceTick(_ context.Context, newTick int64) error {
	m.mu.Lock()
	m.state = core.GameState{CurrentTick: newTick, LastTickAt: time.Now().UTC()}
	m.mu.Unlock()
	m.publish("game_state", core.ChangeUpdate, "", newTick)
	return nil
}

// --- engine-facing reads ---

func (m *Memory) PendingOrders(_ context.Context, gameID string, types ...core.OrderType) ([]core.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []core.Order
	for _, o := range m.orders {
		if o.GameID != gameID || o.Status != core.OrderPending {
			continue
		}
		if len(types) > 0 && !containsType(types, o.Type) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func containsType(types []core.OrderType, t core.OrderType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func (m *Memory) OpenPositions(_ context.Context, gameID string) ([]core.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var positions []core.Position
	for _, p := range m.positions {
		if p.GameID == gameID && p.Status == core.PositionOpen {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].CreatedAt.Equal(positions[j].CreatedAt) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].CreatedAt.Before(positions[j].CreatedAt)
	})
	return positions, nil
}

func (m *Memory) Players(_ context.Context, gameID string) ([]core.GamePlayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.GamePlayer(nil), m.players[gameID]...), nil
}

func (m *Memory) Player(_ context.Context, gameID, userID string) (core.GamePlayer, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players[gameID] {
		if p.UserID == userID {
			return p, true, nil
		}
	}
	return core.GamePlayer{}, false, nil
}

// --- engine-facing mutations ---

func (m *Memory) MarkOrder(_ context.Context, orderID string, status core.OrderStatus, filledPrice *decimal.Decimal) error {
	m.mu.Lock()
	order, ok := m.orders[orderID]
	if !ok || order.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}
	now := time.Now().UTC()
	order.Status = status
	order.UpdatedAt = now
	if status == core.OrderFilled {
		if filledPrice != nil {
			order.FilledPrice = decimal.NewNullDecimal(*filledPrice)
		}
		order.FilledAt = &now
	}
	m.orders[orderID] = order
	m.mu.Unlock()
	m.publish("orders", core.ChangeUpdate, order.GameID, 0)
	return nil
}

func (m *Memory) InsertExecution(_ context.Context, exec core.Execution) error {
	m.mu.Lock()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	exec.CreatedAt = time.Now().UTC()
	m.executions = append(m.executions, exec)
	m.mu.Unlock()
	m.publish("order_executions", core.ChangeInsert, exec.GameID, exec.Tick)
	return nil
}

func (m *Memory) InsertPosition(_ context.Context, pos core.Position) (core.Position, error) {
	m.mu.Lock()
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pos.CreatedAt = now
	pos.UpdatedAt = now
	m.positions[pos.ID] = pos
	m.mu.Unlock()
	m.publish("positions", core.ChangeInsert, pos.GameID, 0)
	return pos, nil
}

func (m *Memory) UpdatePosition(_ context.Context, positionID string, patch core.PositionPatch) error {
	m.mu.Lock()
	pos, ok := m.positions[positionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", apperrors.ErrPositionNotFound, positionID)
	}
	if patch.Status != nil {
		pos.Status = *patch.Status
	}
	if patch.CurrentPrice != nil {
		pos.CurrentPrice = decimal.NewNullDecimal(*patch.CurrentPrice)
	}
	if patch.UnrealizedPnL != nil {
		pos.UnrealizedPnL = *patch.UnrealizedPnL
	}
	if patch.Quantity != nil {
		pos.Quantity = *patch.Quantity
	}
	if patch.EntryPrice != nil {
		pos.EntryPrice = *patch.EntryPrice
	}
	pos.UpdatedAt = time.Now().UTC()
	m.positions[positionID] = pos
	m.mu.Unlock()
	m.publish("positions", core.ChangeUpdate, pos.GameID, 0)
	return nil
}

func (m *Memory) UpdatePlayer(_ context.Context, gameID, userID string, balance, equity decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePlayerLocked(gameID, userID, &balance, equity)
}

func (m *Memory) UpdatePlayerEquity(_ context.Context, gameID, userID string, equity decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePlayerLocked(gameID, userID, nil, equity)
}

func (m *Memory) updatePlayerLocked(gameID, userID string, balance *decimal.Decimal, equity decimal.Decimal) error {
	players := m.players[gameID]
	for i, p := range players {
		if p.UserID != userID {
			continue
		}
		if balance != nil {
			players[i].Balance = *balance
		}
		players[i].Equity = equity
		players[i].UpdatedAt = time.Now().UTC()
		m.publish("game_players", core.ChangeUpdate, gameID, 0)
		return nil
	}
	return fmt.Errorf("%w: player %s not in game %s", apperrors.ErrValidationFailure, userID, gameID)
}

func (m *Memory) InsertEquityHistory(_ context.Context, point core.EquityPoint) error {
	key := fmt.Sprintf("%s/%s/%d", point.GameID, point.PlayerID, point.Tick)
	m.mu.Lock()
	if _, exists := m.equity[key]; exists {
		m.mu.Unlock()
		return nil
	}
	point.CreatedAt = time.Now().UTC()
	m.equity[key] = point
	m.mu.Unlock()
	m.publish("equity_history", core.ChangeInsert, point.GameID, point.Tick)
	return nil
}

// --- game enumeration and completion ---

func (m *Memory) ActiveGames(_ context.Context) ([]core.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var games []core.Game
	for _, g := range m.games {
		if g.Status == core.GameActive && g.StartedAt != nil {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.Before(games[j].CreatedAt) })
	return games, nil
}

func (m *Memory) Game(_ context.Context, gameID string) (core.Game, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	return g, ok, nil
}

func (m *Memory) CompleteGame(_ context.Context, gameID string, endedAt time.Time, winnerID string) error {
	m.mu.Lock()
	g, ok := m.games[gameID]
	if !ok || g.Status != core.GameActive {
		m.mu.Unlock()
		return nil
	}
	g.Status = core.GameCompleted
	g.EndedAt = &endedAt
	g.WinnerID = &winnerID
	g.UpdatedAt = time.Now().UTC()
	m.games[gameID] = g
	m.mu.Unlock()
	m.publish("games", core.ChangeUpdate, gameID, 0)
	return nil
}

// --- lifecycle ---

func (m *Memory) CreateGame(_ context.Context, hostID string, initialBalance decimal.Decimal, durationMinutes int) (core.Game, error) {
	if durationMinutes < m.bounds.Min || durationMinutes > m.bounds.Max {
		return core.Game{}, fmt.Errorf("%w: %d minutes (accepted %d-%d)", apperrors.ErrDurationOutOfBounds, durationMinutes, m.bounds.Min, m.bounds.Max)
	}
	if !initialBalance.IsPositive() {
		return core.Game{}, fmt.Errorf("%w: initial balance must be positive", apperrors.ErrValidationFailure)
	}

	now := time.Now().UTC()
	game := core.Game{
		ID:              uuid.NewString(),
		Player1ID:       hostID,
		Status:          core.GameWaiting,
		InitialBalance:  initialBalance,
		DurationMinutes: durationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	m.mu.Lock()
	m.games[game.ID] = game
	m.players[game.ID] = []core.GamePlayer{{
		GameID:    game.ID,
		UserID:    hostID,
		Balance:   initialBalance,
		Equity:    initialBalance,
		JoinedAt:  now,
		UpdatedAt: now,
	}}
	m.mu.Unlock()

	m.publish("games", core.ChangeInsert, game.ID, 0)
	return game, nil
}

func (m *Memory) JoinGame(_ context.Context, gameID, userID string) (core.Game, error) {
	m.mu.Lock()
	game, ok := m.games[gameID]
	if !ok {
		m.mu.Unlock()
		return core.Game{}, fmt.Errorf("%w: game %s not found", apperrors.ErrGameNotJoinable, gameID)
	}
	if game.Status != core.GameWaiting || game.Player2ID != nil {
		m.mu.Unlock()
		return core.Game{}, fmt.Errorf("%w: game %s is %s", apperrors.ErrGameNotJoinable, gameID, game.Status)
	}
	if game.Player1ID == userID {
		m.mu.Unlock()
		return core.Game{}, fmt.Errorf("%w: cannot join own game", apperrors.ErrGameNotJoinable)
	}

	now := time.Now().UTC()
	game.Player2ID = &userID
	game.Status = core.GameActive
	game.StartedAt = &now
	game.UpdatedAt = now
	m.games[gameID] = game
	m.players[gameID] = append(m.players[gameID], core.GamePlayer{
		GameID:    gameID,
		UserID:    userID,
		Balance:   game.InitialBalance,
		Equity:    game.InitialBalance,
		JoinedAt:  now,
		UpdatedAt: now,
	})
	m.mu.Unlock()

	m.publish("games", core.ChangeUpdate, gameID, 0)
	return game, nil
}

func (m *Memory) SubmitOrder(ctx context.Context, req core.NewOrder) (core.Order, error) {
	if err := req.Validate(); err != nil {
		return core.Order{}, err
	}

	m.mu.Lock()
	game, ok := m.games[req.GameID]
	if !ok || game.Status != core.GameActive {
		m.mu.Unlock()
		return core.Order{}, fmt.Errorf("%w: game is not active", apperrors.ErrValidationFailure)
	}
	inGame := false
	for _, p := range m.players[req.GameID] {
		if p.UserID == req.PlayerID {
			inGame = true
			break
		}
	}
	if !inGame {
		m.mu.Unlock()
		return core.Order{}, fmt.Errorf("%w: player %s is not in game %s", apperrors.ErrValidationFailure, req.PlayerID, req.GameID)
	}

	now := time.Now().UTC()
	order := core.Order{
		ID:        uuid.NewString(),
		GameID:    req.GameID,
		PlayerID:  req.PlayerID,
		Symbol:    req.Symbol,
		Type:      req.Type,
		Side:      req.Side,
		Status:    core.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Quantity != nil {
		order.Quantity = decimal.NewNullDecimal(*req.Quantity)
	}
	if req.Price != nil {
		order.Price = decimal.NewNullDecimal(*req.Price)
	}
	if req.TriggerPrice != nil {
		order.TriggerPrice = decimal.NewNullDecimal(*req.TriggerPrice)
	}
	if req.PositionID != "" {
		order.PositionID = &req.PositionID
	}
	m.orders[order.ID] = order
	m.mu.Unlock()

	m.publish("orders", core.ChangeInsert, order.GameID, 0)
	return order, nil
}

func (m *Memory) CancelOrder(_ context.Context, gameID, orderID, userID string) error {
	m.mu.Lock()
	order, ok := m.orders[orderID]
	if !ok || order.GameID != gameID || order.PlayerID != userID || order.Status != core.OrderPending {
		m.mu.Unlock()
		return fmt.Errorf("%w: order %s", apperrors.ErrOrderNotPending, orderID)
	}
	order.Status = core.OrderCancelled
	order.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = order
	m.mu.Unlock()
	m.publish("orders", core.ChangeUpdate, gameID, 0)
	return nil
}

// --- reporting ---

func (m *Memory) EquityHistory(_ context.Context, gameID, playerID string) ([]core.EquityPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var points []core.EquityPoint
	for _, p := range m.equity {
		if p.GameID == gameID && p.PlayerID == playerID {
			points = append(points, p)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Tick < points[j].Tick })
	return points, nil
}

func (m *Memory) Standings(_ context.Context, gameID string) ([]core.GamePlayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	players := append([]core.GamePlayer(nil), m.players[gameID]...)
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Equity.GreaterThan(players[j].Equity)
	})
	return players, nil
}

// Executions returns the audit rows for an order. Test helper, not part of
// core.Store.
func (m *Memory) Executions(orderID string) []core.Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.Execution
	for _, e := range m.executions {
		if orderID == "" || e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// Order looks up a single order by id. Test helper, not part of core.Store.
func (m *Memory) Order(orderID string) (core.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	return o, ok
}

// AgeGame shifts a game's start time by delta. Test helper, not part of
// core.Store.
func (m *Memory) AgeGame(gameID string, delta time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[gameID]
	if !ok || game.StartedAt == nil {
		return
	}
	shifted := game.StartedAt.Add(delta)
	game.StartedAt = &shifted
	m.games[gameID] = game
}

// ClearPrices drops the price tape. Test helper, not part of core.Store.
func (m *Memory) ClearPrices() {
	m.mu.Lock()
	m.prices = nil
	m.mu.Unlock()
}

func (m *Memory) Close() error {
	return nil
}
