// Package store implements the data store gateway over sqlite, postgres and
// an in-memory map set. Every persistent mutation in the system lives here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"alpharoyale/internal/config"
	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
)

// SQLStore implements core.Store over a relational database through sqlx.
type SQLStore struct {
	db       *sqlx.DB
	dialect  string // sqlite | postgres
	bounds   config.DurationBounds
	notifier core.Notifier
	logger   core.ILogger
}

// NewSQLite opens (or creates) a sqlite database at the given path, applies
// the schema and runs the retention sweep.
func NewSQLite(dsn string, retentionDays int, bounds config.DurationBounds, notifier core.Notifier, logger core.ILogger) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLStore{db: db, dialect: "sqlite", bounds: bounds, notifier: notifier, logger: scoped(logger)}
	if err := s.init(schemaSQLite, retentionDays); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres connects to a postgres database through the pgx stdlib driver,
// applies the schema and runs the retention sweep.
func NewPostgres(dsn string, retentionDays int, bounds config.DurationBounds, notifier core.Notifier, logger core.ILogger) (*SQLStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: "postgres", bounds: bounds, notifier: notifier, logger: scoped(logger)}
	if err := s.init(schemaPostgres, retentionDays); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func scoped(logger core.ILogger) core.ILogger {
	if logger == nil {
		return nil
	}
	return logger.WithField("component", "store")
}

func (s *SQLStore) init(schema string, retentionDays int) error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if retentionDays > 0 {
		s.pruneOld(retentionDays)
	}
	return nil
}

// pruneOld trims the append-only tables so per-tick scans stay bounded.
// Failures are logged and ignored; retention is best-effort housekeeping.
func (s *SQLStore) pruneOld(retentionDays int) {
	horizon := time.Now().UTC().AddDate(0, 0, -retentionDays)
	for table, col := range map[string]string{
		"price_data":     "ts",
		"equity_history": "created_at",
	} {
		q := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s < ?", table, col))
		if _, err := s.db.Exec(q, horizon); err != nil && s.logger != nil {
			s.logger.Warn("Retention sweep failed", "table", table, "error", err)
		}
	}
}

func (s *SQLStore) publish(table, action, gameID string, tick int64) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(core.Change{Table: table, Action: action, GameID: gameID, Tick: tick})
}

// transient wraps infrastructure errors so callers can retry them.
func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrStoreTransient, op, err)
}

// --- prices ---

func (s *SQLStore) LatestPrice(ctx context.Context, symbol string) (core.PricePoint, bool, error) {
	var p core.PricePoint
	q := s.db.Rebind(`SELECT symbol, price, game_state, ts FROM price_data WHERE symbol = ? ORDER BY ts DESC, id DESC LIMIT 1`)
	err := s.db.GetContext(ctx, &p, q, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PricePoint{}, false, nil
	}
	if err != nil {
		return core.PricePoint{}, false, transient("latest price", err)
	}
	return p, true, nil
}

func (s *SQLStore) InsertPrice(ctx context.Context, symbol string, price decimal.Decimal, tick int64) error {
	q := s.db.Rebind(`INSERT INTO price_data (symbol, price, game_state, ts) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, symbol, price, tick, time.Now().UTC()); err != nil {
		return transient("insert price", err)
	}
	s.publish("price_data", core.ChangeInsert, "", tick)
	return nil
}

// --- global tick counter ---

func (s *SQLStore) ReadGameState(ctx context.Context) (core.GameState, error) {
	var gs core.GameState
	q := s.db.Rebind(`SELECT current_tick, last_tick_at FROM game_state WHERE id = 1`)
	err := s.db.GetContext(ctx, &gs, q)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GameState{}, nil
	}
	if err != nil {
		return core.GameState{}, transient("read game state", err)
	}
	return gs, nil
}

func (s *SQLStore) AdvanceTick(ctx context.Context, newTick int64) error {
	now := time.Now().UTC()
	q := s.db.Rebind(`INSERT INTO game_state (id, current_tick, last_tick_at, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET current_tick = excluded.current_tick, last_tick_at = excluded.last_tick_at, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, newTick, now, now); err != nil {
		return transient("advance tick", err)
	}
	s.publish("game_state", core.ChangeUpdate, "", newTick)
	return nil
}

// --- engine-facing reads ---

func (s *SQLStore) PendingOrders(ctx context.Context, gameID string, types ...core.OrderType) ([]core.Order, error) {
	query := `SELECT * FROM orders WHERE game_id = ? AND status = ?`
	args := []interface{}{gameID, core.OrderPending}
	if len(types) > 0 {
		query += ` AND order_type IN (?)`
		args = append(args, types)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, transient("pending orders", err)
	}
	var orders []core.Order
	if err := s.db.SelectContext(ctx, &orders, s.db.Rebind(query), inArgs...); err != nil {
		return nil, transient("pending orders", err)
	}
	return orders, nil
}

func (s *SQLStore) OpenPositions(ctx context.Context, gameID string) ([]core.Position, error) {
	var positions []core.Position
	q := s.db.Rebind(`SELECT * FROM positions WHERE game_id = ? AND status = ? ORDER BY created_at ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &positions, q, gameID, core.PositionOpen); err != nil {
		return nil, transient("open positions", err)
	}
	return positions, nil
}

func (s *SQLStore) Players(ctx context.Context, gameID string) ([]core.GamePlayer, error) {
	var players []core.GamePlayer
	q := s.db.Rebind(`SELECT * FROM game_players WHERE game_id = ? ORDER BY joined_at ASC, user_id ASC`)
	if err := s.db.SelectContext(ctx, &players, q, gameID); err != nil {
		return nil, transient("players", err)
	}
	return players, nil
}

func (s *SQLStore) Player(ctx context.Context, gameID, userID string) (core.GamePlayer, bool, error) {
	var p core.GamePlayer
	q := s.db.Rebind(`SELECT * FROM game_players WHERE game_id = ? AND user_id = ?`)
	err := s.db.GetContext(ctx, &p, q, gameID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GamePlayer{}, false, nil
	}
	if err != nil {
		return core.GamePlayer{}, false, transient("player", err)
	}
	return p, true, nil
}

// --- engine-facing mutations ---

// MarkOrder transitions a pending order. Terminal rows are left untouched so
// tick replays cannot resurrect or re-fill an order.
func (s *SQLStore) MarkOrder(ctx context.Context, orderID string, status core.OrderStatus, filledPrice *decimal.Decimal) error {
	var gameID string
	err := s.db.GetContext(ctx, &gameID, s.db.Rebind(`SELECT game_id FROM orders WHERE id = ?`), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return transient("mark order", err)
	}

	now := time.Now().UTC()
	var res sql.Result
	if status == core.OrderFilled {
		q := s.db.Rebind(`UPDATE orders SET status = ?, filled_price = ?, filled_at = ?, updated_at = ? WHERE id = ? AND status = ?`)
		res, err = s.db.ExecContext(ctx, q, status, filledPrice, now, now, orderID, core.OrderPending)
	} else {
		q := s.db.Rebind(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
		res, err = s.db.ExecContext(ctx, q, status, now, orderID, core.OrderPending)
	}
	if err != nil {
		return transient("mark order", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publish("orders", core.ChangeUpdate, gameID, 0)
	}
	return nil
}

func (s *SQLStore) InsertExecution(ctx context.Context, exec core.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	q := s.db.Rebind(`INSERT INTO order_executions (id, order_id, game_id, player_id, symbol, side, quantity, execution_price, game_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, exec.ID, exec.OrderID, exec.GameID, exec.PlayerID, exec.Symbol, exec.Side, exec.Quantity, exec.Price, exec.Tick, time.Now().UTC())
	if err != nil {
		return transient("insert execution", err)
	}
	s.publish("order_executions", core.ChangeInsert, exec.GameID, exec.Tick)
	return nil
}

func (s *SQLStore) InsertPosition(ctx context.Context, pos core.Position) (core.Position, error) {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pos.CreatedAt = now
	pos.UpdatedAt = now
	q := s.db.Rebind(`INSERT INTO positions (id, game_id, player_id, symbol, side, quantity, entry_price, current_price, leverage, unrealized_pnl, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, pos.ID, pos.GameID, pos.PlayerID, pos.Symbol, pos.Side, pos.Quantity, pos.EntryPrice, pos.CurrentPrice, pos.Leverage, pos.UnrealizedPnL, pos.Status, now, now)
	if err != nil {
		return core.Position{}, transient("insert position", err)
	}
	s.publish("positions", core.ChangeInsert, pos.GameID, 0)
	return pos, nil
}

func (s *SQLStore) UpdatePosition(ctx context.Context, positionID string, patch core.PositionPatch) error {
	var gameID string
	err := s.db.GetContext(ctx, &gameID, s.db.Rebind(`SELECT game_id FROM positions WHERE id = ?`), positionID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", apperrors.ErrPositionNotFound, positionID)
	}
	if err != nil {
		return transient("update position", err)
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.CurrentPrice != nil {
		sets = append(sets, "current_price = ?")
		args = append(args, *patch.CurrentPrice)
	}
	if patch.UnrealizedPnL != nil {
		sets = append(sets, "unrealized_pnl = ?")
		args = append(args, *patch.UnrealizedPnL)
	}
	if patch.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *patch.Quantity)
	}
	if patch.EntryPrice != nil {
		sets = append(sets, "entry_price = ?")
		args = append(args, *patch.EntryPrice)
	}
	args = append(args, positionID)

	q := s.db.Rebind(fmt.Sprintf(`UPDATE positions SET %s WHERE id = ?`, strings.Join(sets, ", ")))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return transient("update position", err)
	}
	s.publish("positions", core.ChangeUpdate, gameID, 0)
	return nil
}

func (s *SQLStore) UpdatePlayer(ctx context.Context, gameID, userID string, balance, equity decimal.Decimal) error {
	q := s.db.Rebind(`UPDATE game_players SET balance = ?, equity = ?, updated_at = ? WHERE game_id = ? AND user_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, balance, equity, time.Now().UTC(), gameID, userID); err != nil {
		return transient("update player", err)
	}
	s.publish("game_players", core.ChangeUpdate, gameID, 0)
	return nil
}

func (s *SQLStore) UpdatePlayerEquity(ctx context.Context, gameID, userID string, equity decimal.Decimal) error {
	q := s.db.Rebind(`UPDATE game_players SET equity = ?, updated_at = ? WHERE game_id = ? AND user_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, equity, time.Now().UTC(), gameID, userID); err != nil {
		return transient("update player equity", err)
	}
	s.publish("game_players", core.ChangeUpdate, gameID, 0)
	return nil
}

// InsertEquityHistory is idempotent on (game, player, tick) so a replayed
// tick cannot duplicate history rows.
func (s *SQLStore) InsertEquityHistory(ctx context.Context, point core.EquityPoint) error {
	var q string
	if s.dialect == "sqlite" {
		q = `INSERT OR IGNORE INTO equity_history (game_id, player_id, game_state, balance, equity, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	} else {
		q = `INSERT INTO equity_history (game_id, player_id, game_state, balance, equity, created_at) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q), point.GameID, point.PlayerID, point.Tick, point.Balance, point.Equity, time.Now().UTC())
	if err != nil {
		return transient("insert equity history", err)
	}
	s.publish("equity_history", core.ChangeInsert, point.GameID, point.Tick)
	return nil
}

// --- game enumeration and completion ---

func (s *SQLStore) ActiveGames(ctx context.Context) ([]core.Game, error) {
	var games []core.Game
	q := s.db.Rebind(`SELECT * FROM games WHERE status = ? AND started_at IS NOT NULL ORDER BY created_at ASC`)
	if err := s.db.SelectContext(ctx, &games, q, core.GameActive); err != nil {
		return nil, transient("active games", err)
	}
	return games, nil
}

func (s *SQLStore) Game(ctx context.Context, gameID string) (core.Game, bool, error) {
	var g core.Game
	q := s.db.Rebind(`SELECT * FROM games WHERE id = ?`)
	err := s.db.GetContext(ctx, &g, q, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Game{}, false, nil
	}
	if err != nil {
		return core.Game{}, false, transient("game", err)
	}
	return g, true, nil
}

func (s *SQLStore) CompleteGame(ctx context.Context, gameID string, endedAt time.Time, winnerID string) error {
	q := s.db.Rebind(`UPDATE games SET status = ?, ended_at = ?, winner_id = ?, updated_at = ? WHERE id = ? AND status = ?`)
	if _, err := s.db.ExecContext(ctx, q, core.GameCompleted, endedAt, winnerID, time.Now().UTC(), gameID, core.GameActive); err != nil {
		return transient("complete game", err)
	}
	s.publish("games", core.ChangeUpdate, gameID, 0)
	return nil
}

// --- lifecycle ---

func (s *SQLStore) CreateGame(ctx context.Context, hostID string, initialBalance decimal.Decimal, durationMinutes int) (core.Game, error) {
	if durationMinutes < s.bounds.Min || durationMinutes > s.bounds.Max {
		return core.Game{}, fmt.Errorf("%w: %d minutes (accepted %d-%d)", apperrors.ErrDurationOutOfBounds, durationMinutes, s.bounds.Min, s.bounds.Max)
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

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Game{}, transient("create game", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := tx.Rebind(`INSERT INTO games (id, player1_id, status, initial_balance, duration_minutes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, game.ID, game.Player1ID, game.Status, game.InitialBalance, game.DurationMinutes, now, now); err != nil {
		return core.Game{}, transient("create game", err)
	}
	q = tx.Rebind(`INSERT INTO game_players (game_id, user_id, balance, equity, joined_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, game.ID, hostID, initialBalance, initialBalance, now, now); err != nil {
		return core.Game{}, transient("create game", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Game{}, transient("create game", err)
	}

	s.publish("games", core.ChangeInsert, game.ID, 0)
	return game, nil
}

// JoinGame adds the second player. The game activates and started_at is
// stamped exactly once, at join time.
func (s *SQLStore) JoinGame(ctx context.Context, gameID, userID string) (core.Game, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Game{}, transient("join game", err)
	}
	defer func() { _ = tx.Rollback() }()

	var game core.Game
	err = tx.GetContext(ctx, &game, tx.Rebind(`SELECT * FROM games WHERE id = ?`), gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Game{}, fmt.Errorf("%w: game %s not found", apperrors.ErrGameNotJoinable, gameID)
	}
	if err != nil {
		return core.Game{}, transient("join game", err)
	}
	if game.Status != core.GameWaiting || game.Player2ID != nil {
		return core.Game{}, fmt.Errorf("%w: game %s is %s", apperrors.ErrGameNotJoinable, gameID, game.Status)
	}
	if game.Player1ID == userID {
		return core.Game{}, fmt.Errorf("%w: cannot join own game", apperrors.ErrGameNotJoinable)
	}

	now := time.Now().UTC()
	game.Player2ID = &userID
	game.Status = core.GameActive
	game.StartedAt = &now
	game.UpdatedAt = now

	q := tx.Rebind(`UPDATE games SET player2_id = ?, status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := tx.ExecContext(ctx, q, userID, core.GameActive, now, now, gameID, core.GameWaiting)
	if err != nil {
		return core.Game{}, transient("join game", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Game{}, fmt.Errorf("%w: game %s already taken", apperrors.ErrGameNotJoinable, gameID)
	}

	q = tx.Rebind(`INSERT INTO game_players (game_id, user_id, balance, equity, joined_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, gameID, userID, game.InitialBalance, game.InitialBalance, now, now); err != nil {
		return core.Game{}, transient("join game", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Game{}, transient("join game", err)
	}

	s.publish("games", core.ChangeUpdate, gameID, 0)
	return game, nil
}

func (s *SQLStore) SubmitOrder(ctx context.Context, req core.NewOrder) (core.Order, error) {
	if err := req.Validate(); err != nil {
		return core.Order{}, err
	}

	game, ok, err := s.Game(ctx, req.GameID)
	if err != nil {
		return core.Order{}, err
	}
	if !ok || game.Status != core.GameActive {
		return core.Order{}, fmt.Errorf("%w: game is not active", apperrors.ErrValidationFailure)
	}
	if _, ok, err := s.Player(ctx, req.GameID, req.PlayerID); err != nil {
		return core.Order{}, err
	} else if !ok {
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

	q := s.db.Rebind(`INSERT INTO orders (id, game_id, player_id, symbol, order_type, side, quantity, price, trigger_price, position_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, order.ID, order.GameID, order.PlayerID, order.Symbol, order.Type, order.Side,
		order.Quantity, order.Price, order.TriggerPrice, order.PositionID, order.Status, now, now)
	if err != nil {
		return core.Order{}, transient("submit order", err)
	}

	s.publish("orders", core.ChangeInsert, order.GameID, 0)
	return order, nil
}

func (s *SQLStore) CancelOrder(ctx context.Context, gameID, orderID, userID string) error {
	q := s.db.Rebind(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND game_id = ? AND player_id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, q, core.OrderCancelled, time.Now().UTC(), orderID, gameID, userID, core.OrderPending)
	if err != nil {
		return transient("cancel order", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order %s", apperrors.ErrOrderNotPending, orderID)
	}
	s.publish("orders", core.ChangeUpdate, gameID, 0)
	return nil
}

// --- reporting ---

func (s *SQLStore) EquityHistory(ctx context.Context, gameID, playerID string) ([]core.EquityPoint, error) {
	var points []core.EquityPoint
	q := s.db.Rebind(`SELECT game_id, player_id, game_state, balance, equity, created_at FROM equity_history WHERE game_id = ? AND player_id = ? ORDER BY game_state ASC`)
	if err := s.db.SelectContext(ctx, &points, q, gameID, playerID); err != nil {
		return nil, transient("equity history", err)
	}
	return points, nil
}

func (s *SQLStore) Standings(ctx context.Context, gameID string) ([]core.GamePlayer, error) {
	var players []core.GamePlayer
	q := s.db.Rebind(`SELECT * FROM game_players WHERE game_id = ? ORDER BY equity DESC, joined_at ASC`)
	if err := s.db.SelectContext(ctx, &players, q, gameID); err != nil {
		return nil, transient("standings", err)
	}
	return players, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
