package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the data store gateway. Every persistent mutation in the system
// goes through it; no caller composes ad-hoc queries. Single-row lookups
// return (zero, false, nil) when the row does not exist. Every returned row
// is a plain value, never a live handle.
type Store interface {
	// Price ingestion and lookup
	LatestPrice(ctx context.Context, symbol string) (PricePoint, bool, error)
	InsertPrice(ctx context.Context, symbol string, price decimal.Decimal, tick int64) error

	// Global tick counter (singleton row; absent row reads as tick 0)
	ReadGameState(ctx context.Context) (GameState, error)
	AdvanceTick(ctx context.Context, newTick int64) error

	// Engine-facing per-game reads
	PendingOrders(ctx context.Context, gameID string, types ...OrderType) ([]Order, error)
	OpenPositions(ctx context.Context, gameID string) ([]Position, error)
	Players(ctx context.Context, gameID string) ([]GamePlayer, error)
	Player(ctx context.Context, gameID, userID string) (GamePlayer, bool, error)

	// Engine-facing mutations
	MarkOrder(ctx context.Context, orderID string, status OrderStatus, filledPrice *decimal.Decimal) error
	InsertExecution(ctx context.Context, exec Execution) error
	// InsertPosition persists a new position, minting its id when absent,
	// and returns the stored row so callers hold the real identity.
	InsertPosition(ctx context.Context, pos Position) (Position, error)
	// UpdatePosition errors when no row carries the id; a patch that lands
	// nowhere is a lost mutation, never a no-op.
	UpdatePosition(ctx context.Context, positionID string, patch PositionPatch) error
	UpdatePlayer(ctx context.Context, gameID, userID string, balance, equity decimal.Decimal) error
	UpdatePlayerEquity(ctx context.Context, gameID, userID string, equity decimal.Decimal) error
	InsertEquityHistory(ctx context.Context, point EquityPoint) error

	// Driver-facing game enumeration and completion
	ActiveGames(ctx context.Context) ([]Game, error)
	Game(ctx context.Context, gameID string) (Game, bool, error)
	CompleteGame(ctx context.Context, gameID string, endedAt time.Time, winnerID string) error

	// Lifecycle operations, called by the REST tier in production and by
	// tests and the operator CLI directly
	CreateGame(ctx context.Context, hostID string, initialBalance decimal.Decimal, durationMinutes int) (Game, error)
	JoinGame(ctx context.Context, gameID, userID string) (Game, error)
	SubmitOrder(ctx context.Context, req NewOrder) (Order, error)
	CancelOrder(ctx context.Context, gameID, orderID, userID string) error

	// Read-only reporting
	EquityHistory(ctx context.Context, gameID, playerID string) ([]EquityPoint, error)
	Standings(ctx context.Context, gameID string) ([]GamePlayer, error)

	Close() error
}

// PriceSource fetches the latest quote per canonical symbol. Symbols the
// vendor cannot serve this round are absent from the result; an empty result
// with a non-nil error means the whole batch failed.
type PriceSource interface {
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// Notifier publishes committed store changes to downstream consumers.
// Publish must never block the caller.
type Notifier interface {
	Publish(change Change)
}

// IHealthMonitor aggregates component health checks
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
