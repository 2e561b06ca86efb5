package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alpharoyale/internal/alert"
	"alpharoyale/internal/config"
	"alpharoyale/internal/core"
	"alpharoyale/internal/pricefeed"
	"alpharoyale/internal/store"
	"alpharoyale/pkg/concurrency"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                 {}
func (noopLogger) Info(string, ...interface{})                  {}
func (noopLogger) Warn(string, ...interface{})                  {}
func (noopLogger) Error(string, ...interface{})                 {}
func (noopLogger) Fatal(string, ...interface{})                 {}
func (l noopLogger) WithField(string, interface{}) core.ILogger { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.ILogger {
	return l
}

// fakeRunner records which games were ticked and which were closed out.
type fakeRunner struct {
	mu       sync.Mutex
	ticked   map[string]int64
	closed   map[string]bool
	tickErrs map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		ticked:   make(map[string]int64),
		closed:   make(map[string]bool),
		tickErrs: make(map[string]error),
	}
}

func (f *fakeRunner) RunTick(_ context.Context, gameID string, tick int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticked[gameID] = tick
	return f.tickErrs[gameID]
}

func (f *fakeRunner) CloseOut(_ context.Context, gameID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[gameID] = true
	return nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeAlerter) Alert(_ context.Context, title, _ string, _ alert.AlertLevel, _ map[string]string) {
	f.mu.Lock()
	f.titles = append(f.titles, title)
	f.mu.Unlock()
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fixture struct {
	driver *Driver
	store  *store.Memory
	feed   *pricefeed.Static
	runner *fakeRunner
	pool   *concurrency.WorkerPool
}

func newFixture(t *testing.T, symbols []string) *fixture {
	t.Helper()
	mem := store.NewMemory(config.DurationBounds{Min: 1, Max: 1440}, nil)
	feed := pricefeed.NewStatic(nil)
	runner := newFakeRunner()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name: "test", MaxWorkers: 2, MaxCapacity: 16,
	}, noopLogger{})
	t.Cleanup(pool.Stop)

	return &fixture{
		driver: New(mem, feed, runner, pool, symbols, nil, noopLogger{}),
		store:  mem,
		feed:   feed,
		runner: runner,
		pool:   pool,
	}
}

func (f *fixture) activeGame(t *testing.T) core.Game {
	t.Helper()
	ctx := context.Background()
	game, err := f.store.CreateGame(ctx, "alice", d("10000"), 60)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	game, err = f.store.JoinGame(ctx, game.ID, "bob")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	return game
}

func TestRunOnceIngestsPricesAndAdvancesTick(t *testing.T) {
	f := newFixture(t, []string{"BTC", "ETH"})
	f.feed.Set("BTC", d("50000"))
	f.feed.Set("ETH", d("3000"))
	ctx := context.Background()

	tick, err := f.driver.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if tick != 1 {
		t.Fatalf("tick = %d, want 1", tick)
	}

	state, err := f.store.ReadGameState(ctx)
	if err != nil {
		t.Fatalf("ReadGameState: %v", err)
	}
	if state.CurrentTick != 1 {
		t.Errorf("CurrentTick = %d, want 1", state.CurrentTick)
	}

	for _, symbol := range []string{"BTC", "ETH"} {
		price, ok, err := f.store.LatestPrice(ctx, symbol)
		if err != nil || !ok {
			t.Fatalf("LatestPrice(%s): ok=%v err=%v", symbol, ok, err)
		}
		if price.Tick != 1 {
			t.Errorf("%s price tick = %d, want 1", symbol, price.Tick)
		}
	}
}

func TestRunOnceToleratesFeedOutage(t *testing.T) {
	f := newFixture(t, []string{"BTC"})
	f.feed.SetUnavailable(true)
	ctx := context.Background()

	tick, err := f.driver.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce during outage: %v", err)
	}
	if tick != 1 {
		t.Fatalf("tick = %d, want 1", tick)
	}
	if _, ok, _ := f.store.LatestPrice(ctx, "BTC"); ok {
		t.Error("price row written during outage")
	}
}

func TestRunOnceAlertsAfterConsecutiveOutages(t *testing.T) {
	f := newFixture(t, []string{"BTC"})
	alerts := &fakeAlerter{}
	f.driver.alerts = alerts
	f.feed.SetUnavailable(true)
	ctx := context.Background()

	for i := 0; i < feedOutageAlertAfter+2; i++ {
		if _, err := f.driver.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce #%d: %v", i, err)
		}
	}
	// alerted exactly once, at the threshold
	if got := alerts.count(); got != 1 {
		t.Errorf("alerts = %d, want 1", got)
	}

	// a successful fetch resets the streak
	f.feed.SetUnavailable(false)
	f.feed.Set("BTC", d("50000"))
	if _, err := f.driver.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce after recovery: %v", err)
	}
	if got := f.driver.feedOutages.Load(); got != 0 {
		t.Errorf("feedOutages after recovery = %d, want 0", got)
	}
}

func TestRunOnceDispatchesActiveGames(t *testing.T) {
	f := newFixture(t, []string{"BTC"})
	f.feed.Set("BTC", d("50000"))
	game := f.activeGame(t)

	tick, err := f.driver.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if got := f.runner.ticked[game.ID]; got != tick {
		t.Errorf("game ticked at %d, want %d", got, tick)
	}
	if f.runner.closed[game.ID] {
		t.Error("running game was closed out")
	}
}

func TestRunOnceClosesExpiredGames(t *testing.T) {
	f := newFixture(t, []string{"BTC"})
	f.feed.Set("BTC", d("50000"))
	game := f.activeGame(t)

	// jump the driver clock past the game duration
	f.driver.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := f.driver.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if !f.runner.closed[game.ID] {
		t.Error("expired game was not closed out")
	}
	if _, ticked := f.runner.ticked[game.ID]; ticked {
		t.Error("expired game was also ticked")
	}
}

func TestPerGameFailureDoesNotFailThePass(t *testing.T) {
	f := newFixture(t, []string{"BTC"})
	f.feed.Set("BTC", d("50000"))
	sick := f.activeGame(t)
	healthy := f.activeGame(t)
	f.runner.tickErrs[sick.ID] = errors.New("boom")

	tick, err := f.driver.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if got := f.runner.ticked[healthy.ID]; got != tick {
		t.Errorf("healthy game ticked at %d, want %d", got, tick)
	}
}

// failingStore forces InsertPrice to fail so the pass must abort before the
// tick counter moves.
type failingStore struct {
	core.Store
}

func (s failingStore) InsertPrice(context.Context, string, decimal.Decimal, int64) error {
	return errors.New("disk full")
}

func TestTickDoesNotAdvancePastFailedPriceWrite(t *testing.T) {
	f := newFixture(t, []string{"BTC"})
	f.feed.Set("BTC", d("50000"))
	f.driver.store = failingStore{Store: f.store}
	ctx := context.Background()

	if _, err := f.driver.RunOnce(ctx); err == nil {
		t.Fatal("RunOnce succeeded despite failed price write")
	}
	state, err := f.store.ReadGameState(ctx)
	if err != nil {
		t.Fatalf("ReadGameState: %v", err)
	}
	if state.CurrentTick != 0 {
		t.Errorf("CurrentTick = %d, want 0 after aborted pass", state.CurrentTick)
	}
}
