// Package core defines the domain types and interfaces for the match engine
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order or position
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType identifies how an order is triggered
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
)

// OrderStatus is the order lifecycle state. filled, cancelled and rejected
// are terminal and absorbing: a terminal order is never re-evaluated.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// Terminal reports whether the status is absorbing.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// GameStatus is the game lifecycle state
type GameStatus string

const (
	GameWaiting   GameStatus = "waiting"
	GameActive    GameStatus = "active"
	GameCompleted GameStatus = "completed"
)

// PositionStatus is the position lifecycle state
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// GameState is the singleton tick counter. Exactly one row exists; the
// driver advances CurrentTick monotonically, strictly after the price rows
// for that tick have been written.
type GameState struct {
	CurrentTick int64     `db:"current_tick" json:"current_tick"`
	LastTickAt  time.Time `db:"last_tick_at" json:"last_tick_at"`
}

// Game is a head-to-head match between two players
type Game struct {
	ID              string          `db:"id" json:"id"`
	Player1ID       string          `db:"player1_id" json:"player1_id"`
	Player2ID       *string         `db:"player2_id" json:"player2_id,omitempty"`
	Status          GameStatus      `db:"status" json:"status"`
	InitialBalance  decimal.Decimal `db:"initial_balance" json:"initial_balance"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	StartedAt       *time.Time      `db:"started_at" json:"started_at,omitempty"`
	EndedAt         *time.Time      `db:"ended_at" json:"ended_at,omitempty"`
	WinnerID        *string         `db:"winner_id" json:"winner_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ExpiresAt returns the wall-clock moment the game duration elapses.
// The second return is false while the game has not started.
func (g Game) ExpiresAt() (time.Time, bool) {
	if g.StartedAt == nil {
		return time.Time{}, false
	}
	return g.StartedAt.Add(time.Duration(g.DurationMinutes) * time.Minute), true
}

// Expired reports whether the game duration has elapsed at now.
func (g Game) Expired(now time.Time) bool {
	deadline, ok := g.ExpiresAt()
	if !ok {
		return false
	}
	return !now.Before(deadline)
}

// GamePlayer is one player's cash and marked equity within a game.
// Balance is cash only; Equity is balance plus the sum of unrealized PnL
// over the player's open positions as of the last refresh.
type GamePlayer struct {
	GameID    string          `db:"game_id" json:"game_id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Equity    decimal.Decimal `db:"equity" json:"equity"`
	JoinedAt  time.Time       `db:"joined_at" json:"joined_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Position is an open or closed holding. At most one open position exists
// per (game, player, symbol); a further BUY merges into it with a
// weighted-average entry price. Leverage is honored only by mark-to-market.
type Position struct {
	ID            string              `db:"id" json:"id"`
	GameID        string              `db:"game_id" json:"game_id"`
	PlayerID      string              `db:"player_id" json:"player_id"`
	Symbol        string              `db:"symbol" json:"symbol"`
	Side          Side                `db:"side" json:"side"`
	Quantity      decimal.Decimal     `db:"quantity" json:"quantity"`
	EntryPrice    decimal.Decimal     `db:"entry_price" json:"entry_price"`
	CurrentPrice  decimal.NullDecimal `db:"current_price" json:"current_price,omitempty"`
	Leverage      decimal.Decimal     `db:"leverage" json:"leverage"`
	UnrealizedPnL decimal.Decimal     `db:"unrealized_pnl" json:"unrealized_pnl"`
	Status        PositionStatus      `db:"status" json:"status"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// Order is a player instruction evaluated by the tick engine. Quantity is
// required for MARKET and LIMIT; a TP/SL with null quantity means "the full
// position at trigger time". Price carries the LIMIT price, TriggerPrice the
// TP/SL threshold, PositionID the open BUY position a TP/SL must reference.
type Order struct {
	ID           string              `db:"id" json:"id"`
	GameID       string              `db:"game_id" json:"game_id"`
	PlayerID     string              `db:"player_id" json:"player_id"`
	Symbol       string              `db:"symbol" json:"symbol"`
	Type         OrderType           `db:"order_type" json:"order_type"`
	Side         Side                `db:"side" json:"side"`
	Quantity     decimal.NullDecimal `db:"quantity" json:"quantity,omitempty"`
	Price        decimal.NullDecimal `db:"price" json:"price,omitempty"`
	TriggerPrice decimal.NullDecimal `db:"trigger_price" json:"trigger_price,omitempty"`
	PositionID   *string             `db:"position_id" json:"position_id,omitempty"`
	Status       OrderStatus         `db:"status" json:"status"`
	FilledPrice  decimal.NullDecimal `db:"filled_price" json:"filled_price,omitempty"`
	FilledAt     *time.Time          `db:"filled_at" json:"filled_at,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// Conditional reports whether the order is a TP/SL order.
func (o Order) Conditional() bool {
	return o.Type == OrderTypeTakeProfit || o.Type == OrderTypeStopLoss
}

// Execution is one append-only audit row per fill
type Execution struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	GameID    string          `db:"game_id" json:"game_id"`
	PlayerID  string          `db:"player_id" json:"player_id"`
	Symbol    string          `db:"symbol" json:"symbol"`
	Side      Side            `db:"side" json:"side"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"execution_price" json:"execution_price"`
	Tick      int64           `db:"game_state" json:"game_state"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// PricePoint is one append-only price row. The latest price for a symbol is
// the row with the highest timestamp; multiple rows per tick are tolerated.
type PricePoint struct {
	Symbol string          `db:"symbol" json:"symbol"`
	Price  decimal.Decimal `db:"price" json:"price"`
	Tick   int64           `db:"game_state" json:"game_state"`
	At     time.Time       `db:"ts" json:"ts"`
}

// EquityPoint is one append-only equity-history row, unique per
// (game, player, tick)
type EquityPoint struct {
	GameID    string          `db:"game_id" json:"game_id"`
	PlayerID  string          `db:"player_id" json:"player_id"`
	Tick      int64           `db:"game_state" json:"game_state"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Equity    decimal.Decimal `db:"equity" json:"equity"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Quote is a vendor price observation for a canonical symbol
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// PositionPatch is the partial update accepted by Store.UpdatePosition.
// Nil fields are left untouched.
type PositionPatch struct {
	Status        *PositionStatus
	CurrentPrice  *decimal.Decimal
	UnrealizedPnL *decimal.Decimal
	Quantity      *decimal.Decimal
	EntryPrice    *decimal.Decimal
}

// Change describes a committed store mutation, published to downstream
// consumers. The engine never consumes these.
type Change struct {
	Table  string `json:"table"`
	Action string `json:"action"`
	GameID string `json:"game_id,omitempty"`
	Tick   int64  `json:"tick,omitempty"`
}

// Change actions
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
)
