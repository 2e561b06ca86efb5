package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alpharoyale/internal/config"
	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
)

var testBounds = config.DurationBounds{Min: 1, Max: 1440}

// newStores returns a fresh instance of every gateway implementation, so the
// whole contract suite runs against each of them.
func newStores(t *testing.T) map[string]core.Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "royale.db"), 30, testBounds, nil, nil)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]core.Store{
		"memory": NewMemory(testBounds, nil),
		"sqlite": sqlite,
	}
}

func mustCreateActiveGame(t *testing.T, s core.Store, balance string) core.Game {
	t.Helper()
	ctx := context.Background()
	game, err := s.CreateGame(ctx, "alice", dec(balance), 60)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	game, err = s.JoinGame(ctx, game.ID, "bob")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	return game
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestGameLifecycle(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			game, err := s.CreateGame(ctx, "alice", dec("10000"), 60)
			if err != nil {
				t.Fatalf("CreateGame: %v", err)
			}
			if game.Status != core.GameWaiting {
				t.Errorf("new game status = %s, want waiting", game.Status)
			}
			if game.StartedAt != nil {
				t.Error("started_at must not be stamped before the second join")
			}

			joined, err := s.JoinGame(ctx, game.ID, "bob")
			if err != nil {
				t.Fatalf("JoinGame: %v", err)
			}
			if joined.Status != core.GameActive {
				t.Errorf("joined game status = %s, want active", joined.Status)
			}
			if joined.StartedAt == nil {
				t.Fatal("started_at must be stamped at activation")
			}

			// the game is full now
			if _, err := s.JoinGame(ctx, game.ID, "carol"); !errors.Is(err, apperrors.ErrGameNotJoinable) {
				t.Errorf("third join: expected ErrGameNotJoinable, got %v", err)
			}

			players, err := s.Players(ctx, game.ID)
			if err != nil {
				t.Fatalf("Players: %v", err)
			}
			if len(players) != 2 {
				t.Fatalf("expected 2 players, got %d", len(players))
			}
			for _, p := range players {
				if !p.Balance.Equal(dec("10000")) || !p.Equity.Equal(dec("10000")) {
					t.Errorf("player %s balance/equity = %s/%s, want 10000/10000", p.UserID, p.Balance, p.Equity)
				}
			}

			active, err := s.ActiveGames(ctx)
			if err != nil {
				t.Fatalf("ActiveGames: %v", err)
			}
			if len(active) != 1 || active[0].ID != game.ID {
				t.Errorf("expected exactly the joined game to be active, got %v", active)
			}
		})
	}
}

func TestCreateGame_DurationBounds(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, minutes := range []int{0, -5, 1441} {
				if _, err := s.CreateGame(ctx, "alice", dec("10000"), minutes); !errors.Is(err, apperrors.ErrDurationOutOfBounds) {
					t.Errorf("duration %d: expected ErrDurationOutOfBounds, got %v", minutes, err)
				}
			}
		})
	}
}

func TestJoinOwnGameRejected(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game, _ := s.CreateGame(ctx, "alice", dec("10000"), 60)
			if _, err := s.JoinGame(ctx, game.ID, "alice"); !errors.Is(err, apperrors.ErrGameNotJoinable) {
				t.Errorf("expected ErrGameNotJoinable, got %v", err)
			}
		})
	}
}

func TestLatestPrice(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.LatestPrice(ctx, "BTC"); err != nil || ok {
				t.Fatalf("empty store: ok=%v err=%v, want absent without error", ok, err)
			}

			if err := s.InsertPrice(ctx, "BTC", dec("50000"), 1); err != nil {
				t.Fatalf("InsertPrice: %v", err)
			}
			time.Sleep(5 * time.Millisecond) // distinct timestamps
			if err := s.InsertPrice(ctx, "BTC", dec("51000"), 2); err != nil {
				t.Fatalf("InsertPrice: %v", err)
			}
			if err := s.InsertPrice(ctx, "ETH", dec("3000"), 2); err != nil {
				t.Fatalf("InsertPrice: %v", err)
			}

			p, ok, err := s.LatestPrice(ctx, "BTC")
			if err != nil || !ok {
				t.Fatalf("LatestPrice: ok=%v err=%v", ok, err)
			}
			if !p.Price.Equal(dec("51000")) {
				t.Errorf("latest BTC = %s, want 51000 (highest timestamp wins)", p.Price)
			}
			if p.Tick != 2 {
				t.Errorf("latest BTC tick = %d, want 2", p.Tick)
			}
		})
	}
}

func TestAdvanceTick_UpsertsSingleton(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			gs, err := s.ReadGameState(ctx)
			if err != nil {
				t.Fatalf("ReadGameState: %v", err)
			}
			if gs.CurrentTick != 0 {
				t.Errorf("fresh store tick = %d, want 0", gs.CurrentTick)
			}

			for tick := int64(1); tick <= 3; tick++ {
				if err := s.AdvanceTick(ctx, tick); err != nil {
					t.Fatalf("AdvanceTick(%d): %v", tick, err)
				}
			}
			gs, _ = s.ReadGameState(ctx)
			if gs.CurrentTick != 3 {
				t.Errorf("tick = %d, want 3", gs.CurrentTick)
			}
			if gs.LastTickAt.IsZero() {
				t.Error("last_tick_at must be stamped")
			}
		})
	}
}

func TestSubmitAndPendingOrders(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			qty := dec("0.1")
			limit := dec("45000")
			if _, err := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "alice", Symbol: "BTC",
				Type: core.OrderTypeMarket, Side: core.SideBuy, Quantity: &qty,
			}); err != nil {
				t.Fatalf("SubmitOrder market: %v", err)
			}
			if _, err := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "bob", Symbol: "BTC",
				Type: core.OrderTypeLimit, Side: core.SideBuy, Quantity: &qty, Price: &limit,
			}); err != nil {
				t.Fatalf("SubmitOrder limit: %v", err)
			}

			all, err := s.PendingOrders(ctx, game.ID)
			if err != nil {
				t.Fatalf("PendingOrders: %v", err)
			}
			if len(all) != 2 {
				t.Fatalf("expected 2 pending orders, got %d", len(all))
			}

			markets, err := s.PendingOrders(ctx, game.ID, core.OrderTypeMarket)
			if err != nil {
				t.Fatalf("PendingOrders filtered: %v", err)
			}
			if len(markets) != 1 || markets[0].Type != core.OrderTypeMarket {
				t.Errorf("type filter returned %v", markets)
			}
		})
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			zero := decimal.Zero
			if _, err := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "alice", Symbol: "BTC",
				Type: core.OrderTypeMarket, Side: core.SideBuy, Quantity: &zero,
			}); !errors.Is(err, apperrors.ErrValidationFailure) {
				t.Errorf("zero quantity: expected ErrValidationFailure, got %v", err)
			}

			qty := dec("1")
			if _, err := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "mallory", Symbol: "BTC",
				Type: core.OrderTypeMarket, Side: core.SideBuy, Quantity: &qty,
			}); !errors.Is(err, apperrors.ErrValidationFailure) {
				t.Errorf("outsider: expected ErrValidationFailure, got %v", err)
			}
		})
	}
}

func TestMarkOrder_TerminalIsImmutable(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			qty := dec("0.1")
			order, err := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "alice", Symbol: "BTC",
				Type: core.OrderTypeMarket, Side: core.SideBuy, Quantity: &qty,
			})
			if err != nil {
				t.Fatalf("SubmitOrder: %v", err)
			}

			px := dec("50000")
			if err := s.MarkOrder(ctx, order.ID, core.OrderFilled, &px); err != nil {
				t.Fatalf("MarkOrder: %v", err)
			}

			// a second transition must not touch the row
			if err := s.MarkOrder(ctx, order.ID, core.OrderRejected, nil); err != nil {
				t.Fatalf("MarkOrder replay: %v", err)
			}

			pending, _ := s.PendingOrders(ctx, game.ID)
			if len(pending) != 0 {
				t.Errorf("expected no pending orders, got %d", len(pending))
			}
			// cancel after fill must fail
			if err := s.CancelOrder(ctx, game.ID, order.ID, "alice"); !errors.Is(err, apperrors.ErrOrderNotPending) {
				t.Errorf("cancel filled order: expected ErrOrderNotPending, got %v", err)
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			qty := dec("0.1")
			limit := dec("45000")
			order, _ := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "alice", Symbol: "BTC",
				Type: core.OrderTypeLimit, Side: core.SideBuy, Quantity: &qty, Price: &limit,
			})

			if err := s.CancelOrder(ctx, game.ID, order.ID, "bob"); !errors.Is(err, apperrors.ErrOrderNotPending) {
				t.Errorf("cancel another player's order: expected ErrOrderNotPending, got %v", err)
			}
			if err := s.CancelOrder(ctx, game.ID, order.ID, "alice"); err != nil {
				t.Fatalf("CancelOrder: %v", err)
			}
			pending, _ := s.PendingOrders(ctx, game.ID)
			if len(pending) != 0 {
				t.Errorf("expected no pending orders after cancel, got %d", len(pending))
			}
		})
	}
}

func TestPositions(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			pos := core.Position{
				ID:            "pos-1",
				GameID:        game.ID,
				PlayerID:      "alice",
				Symbol:        "BTC",
				Side:          core.SideBuy,
				Quantity:      dec("0.1"),
				EntryPrice:    dec("50000"),
				Leverage:      dec("1"),
				UnrealizedPnL: decimal.Zero,
				Status:        core.PositionOpen,
			}
			inserted, err := s.InsertPosition(ctx, pos)
			if err != nil {
				t.Fatalf("InsertPosition: %v", err)
			}
			if inserted.ID != "pos-1" {
				t.Errorf("inserted id = %s, want the caller's pos-1", inserted.ID)
			}

			minted, err := s.InsertPosition(ctx, core.Position{
				GameID:     game.ID,
				PlayerID:   "bob",
				Symbol:     "ETH",
				Side:       core.SideBuy,
				Quantity:   dec("1"),
				EntryPrice: dec("3000"),
				Leverage:   dec("1"),
				Status:     core.PositionClosed,
			})
			if err != nil {
				t.Fatalf("InsertPosition without id: %v", err)
			}
			if minted.ID == "" {
				t.Fatal("store must return the minted position id")
			}

			open, err := s.OpenPositions(ctx, game.ID)
			if err != nil {
				t.Fatalf("OpenPositions: %v", err)
			}
			if len(open) != 1 || !open[0].Quantity.Equal(dec("0.1")) {
				t.Fatalf("unexpected open positions: %v", open)
			}

			newQty := dec("0.2")
			newEntry := dec("55000")
			pnl := dec("123.45")
			px := dec("60000")
			if err := s.UpdatePosition(ctx, "pos-1", core.PositionPatch{
				Quantity:      &newQty,
				EntryPrice:    &newEntry,
				UnrealizedPnL: &pnl,
				CurrentPrice:  &px,
			}); err != nil {
				t.Fatalf("UpdatePosition: %v", err)
			}

			open, _ = s.OpenPositions(ctx, game.ID)
			got := open[0]
			if !got.Quantity.Equal(newQty) || !got.EntryPrice.Equal(newEntry) || !got.UnrealizedPnL.Equal(pnl) {
				t.Errorf("patch not applied: %+v", got)
			}
			if !got.CurrentPrice.Valid || !got.CurrentPrice.Decimal.Equal(px) {
				t.Errorf("current_price not applied: %+v", got.CurrentPrice)
			}

			closed := core.PositionClosed
			if err := s.UpdatePosition(ctx, "pos-1", core.PositionPatch{Status: &closed}); err != nil {
				t.Fatalf("close position: %v", err)
			}
			open, _ = s.OpenPositions(ctx, game.ID)
			if len(open) != 0 {
				t.Errorf("expected no open positions after close, got %d", len(open))
			}

			// a patch with no row to land on is an error, never a no-op
			if err := s.UpdatePosition(ctx, "ghost", core.PositionPatch{Status: &closed}); !errors.Is(err, apperrors.ErrPositionNotFound) {
				t.Errorf("patch of unknown position: expected ErrPositionNotFound, got %v", err)
			}
		})
	}
}

func TestPlayerUpdates(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			if err := s.UpdatePlayer(ctx, game.ID, "alice", dec("5000"), dec("5100")); err != nil {
				t.Fatalf("UpdatePlayer: %v", err)
			}
			p, ok, err := s.Player(ctx, game.ID, "alice")
			if err != nil || !ok {
				t.Fatalf("Player: ok=%v err=%v", ok, err)
			}
			if !p.Balance.Equal(dec("5000")) || !p.Equity.Equal(dec("5100")) {
				t.Errorf("balance/equity = %s/%s, want 5000/5100", p.Balance, p.Equity)
			}

			if err := s.UpdatePlayerEquity(ctx, game.ID, "alice", dec("5200")); err != nil {
				t.Fatalf("UpdatePlayerEquity: %v", err)
			}
			p, _, _ = s.Player(ctx, game.ID, "alice")
			if !p.Balance.Equal(dec("5000")) {
				t.Errorf("equity-only update touched balance: %s", p.Balance)
			}
			if !p.Equity.Equal(dec("5200")) {
				t.Errorf("equity = %s, want 5200", p.Equity)
			}

			if _, ok, _ := s.Player(ctx, game.ID, "nobody"); ok {
				t.Error("unknown player must read as absent")
			}
		})
	}
}

func TestEquityHistory_IdempotentOnTriple(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			point := core.EquityPoint{
				GameID: game.ID, PlayerID: "alice", Tick: 7,
				Balance: dec("5000"), Equity: dec("5100"),
			}
			if err := s.InsertEquityHistory(ctx, point); err != nil {
				t.Fatalf("InsertEquityHistory: %v", err)
			}
			// replayed tick writes the same triple
			if err := s.InsertEquityHistory(ctx, point); err != nil {
				t.Fatalf("InsertEquityHistory replay: %v", err)
			}
			if err := s.InsertEquityHistory(ctx, core.EquityPoint{
				GameID: game.ID, PlayerID: "alice", Tick: 8,
				Balance: dec("5000"), Equity: dec("5150"),
			}); err != nil {
				t.Fatalf("InsertEquityHistory tick 8: %v", err)
			}

			points, err := s.EquityHistory(ctx, game.ID, "alice")
			if err != nil {
				t.Fatalf("EquityHistory: %v", err)
			}
			if len(points) != 2 {
				t.Fatalf("expected 2 history rows, got %d", len(points))
			}
			if points[0].Tick != 7 || points[1].Tick != 8 {
				t.Errorf("history not ordered by tick: %v", points)
			}
		})
	}
}

func TestCompleteGame(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			endedAt := time.Now().UTC()
			if err := s.CompleteGame(ctx, game.ID, endedAt, "bob"); err != nil {
				t.Fatalf("CompleteGame: %v", err)
			}

			g, ok, _ := s.Game(ctx, game.ID)
			if !ok {
				t.Fatal("game vanished")
			}
			if g.Status != core.GameCompleted {
				t.Errorf("status = %s, want completed", g.Status)
			}
			if g.WinnerID == nil || *g.WinnerID != "bob" {
				t.Errorf("winner = %v, want bob", g.WinnerID)
			}
			if g.EndedAt == nil {
				t.Error("ended_at must be stamped")
			}

			active, _ := s.ActiveGames(ctx)
			if len(active) != 0 {
				t.Errorf("completed game still enumerated as active")
			}
		})
	}
}

func TestStandings_OrderedByEquity(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := mustCreateActiveGame(t, s, "10000")

			if err := s.UpdatePlayer(ctx, game.ID, "bob", dec("12000"), dec("12000")); err != nil {
				t.Fatalf("UpdatePlayer: %v", err)
			}

			standings, err := s.Standings(ctx, game.ID)
			if err != nil {
				t.Fatalf("Standings: %v", err)
			}
			if len(standings) != 2 || standings[0].UserID != "bob" {
				t.Errorf("expected bob on top, got %v", standings)
			}
		})
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []core.Change
}

func (r *recordingNotifier) Publish(c core.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recordingNotifier) snapshot() []core.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Change(nil), r.changes...)
}

// Order and position changes must carry the game id so subscribers filtering
// by game see every update, on both gateway implementations.
func TestChangesCarryGameID(t *testing.T) {
	builders := map[string]func(t *testing.T, n core.Notifier) core.Store{
		"memory": func(_ *testing.T, n core.Notifier) core.Store {
			return NewMemory(testBounds, n)
		},
		"sqlite": func(t *testing.T, n core.Notifier) core.Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "royale.db"), 30, testBounds, n, nil)
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			return s
		},
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &recordingNotifier{}
			s := build(t, rec)
			t.Cleanup(func() { s.Close() })

			game := mustCreateActiveGame(t, s, "10000")

			qty := dec("0.1")
			order, err := s.SubmitOrder(ctx, core.NewOrder{
				GameID: game.ID, PlayerID: "alice", Symbol: "BTC",
				Type: core.OrderTypeMarket, Side: core.SideBuy, Quantity: &qty,
			})
			if err != nil {
				t.Fatalf("SubmitOrder: %v", err)
			}
			px := dec("50000")
			if err := s.MarkOrder(ctx, order.ID, core.OrderFilled, &px); err != nil {
				t.Fatalf("MarkOrder: %v", err)
			}

			pos, err := s.InsertPosition(ctx, core.Position{
				GameID: game.ID, PlayerID: "alice", Symbol: "BTC",
				Side: core.SideBuy, Quantity: qty, EntryPrice: px,
				Leverage: dec("1"), Status: core.PositionOpen,
			})
			if err != nil {
				t.Fatalf("InsertPosition: %v", err)
			}
			pnl := dec("200")
			if err := s.UpdatePosition(ctx, pos.ID, core.PositionPatch{UnrealizedPnL: &pnl}); err != nil {
				t.Fatalf("UpdatePosition: %v", err)
			}

			var orderUpdates, positionUpdates int
			for _, c := range rec.snapshot() {
				switch c.Table {
				case "orders", "positions":
					if c.GameID != game.ID {
						t.Errorf("%s %s change game_id = %q, want %q", c.Table, c.Action, c.GameID, game.ID)
					}
					if c.Action == core.ChangeUpdate && c.Table == "orders" {
						orderUpdates++
					}
					if c.Action == core.ChangeUpdate && c.Table == "positions" {
						positionUpdates++
					}
				}
			}
			if orderUpdates == 0 {
				t.Error("no order update change published")
			}
			if positionUpdates == 0 {
				t.Error("no position update change published")
			}
		})
	}
}

func TestOpen_SelectsDriver(t *testing.T) {
	s, err := Open(config.StoreConfig{Driver: "memory"}, testBounds, nil, nil)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", s)
	}

	if _, err := Open(config.StoreConfig{Driver: "oracle"}, testBounds, nil, nil); !errors.Is(err, apperrors.ErrUnknownStoreDriver) {
		t.Errorf("expected ErrUnknownStoreDriver, got %v", err)
	}
}
