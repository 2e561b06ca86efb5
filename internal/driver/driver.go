// Package driver runs one global tick: ingest prices, advance the tick
// counter, then fan the tick out to every active game.
package driver

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"alpharoyale/internal/alert"
	"alpharoyale/internal/core"
	"alpharoyale/pkg/concurrency"
	"alpharoyale/pkg/retry"
	"alpharoyale/pkg/telemetry"
)

// consecutive feed outages before an alert goes out
const feedOutageAlertAfter = 3

// TickRunner is the per-game pipeline the driver dispatches to.
type TickRunner interface {
	RunTick(ctx context.Context, gameID string, tick int64) error
	CloseOut(ctx context.Context, gameID string, now time.Time) error
}

// Alerter is the slice of the alert manager the driver needs.
type Alerter interface {
	Alert(ctx context.Context, title, message string, level alert.AlertLevel, fields map[string]string)
}

// Driver owns the global tick pass. One instance serves the whole process;
// overlapping invocations are safe because each pass is keyed by its own
// tick and the engine serializes per game.
type Driver struct {
	store   core.Store
	feed    core.PriceSource
	engine  TickRunner
	pool    *concurrency.WorkerPool
	alerts  Alerter
	symbols []string
	logger  core.ILogger
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder

	now func() time.Time

	feedOutages atomic.Int64 // consecutive, reset on any successful fetch
}

// New creates a driver. alerts may be nil; outage and completion
// notifications then only reach the log.
func New(store core.Store, feed core.PriceSource, engine TickRunner, pool *concurrency.WorkerPool, symbols []string, alerts Alerter, logger core.ILogger) *Driver {
	return &Driver{
		store:   store,
		feed:    feed,
		engine:  engine,
		pool:    pool,
		alerts:  alerts,
		symbols: symbols,
		logger:  logger.WithField("component", "driver"),
		tracer:  telemetry.GetTracer("driver"),
		metrics: telemetry.GetGlobalMetrics(),
		now:     time.Now,
	}
}

// RunOnce executes one global tick pass and returns the new tick number.
// Price rows are written before the tick counter advances, so a reader that
// observes tick T' always finds the prices of T' in place. Per-game failures
// are logged and counted, never propagated: one sick game must not stall
// the other games on the tick.
func (d *Driver) RunOnce(ctx context.Context) (int64, error) {
	started := d.now()
	ctx, span := d.tracer.Start(ctx, "driver.RunOnce")
	defer span.End()
	d.metrics.CountTick(ctx)

	quotes := d.fetchQuotes(ctx)

	state, err := d.store.ReadGameState(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	next := state.CurrentTick + 1
	span.SetAttributes(attribute.Int64("tick", next))

	// ordered by configured symbol list for a stable insert order
	for _, symbol := range d.symbols {
		quote, ok := quotes[symbol]
		if !ok {
			continue
		}
		if err := retry.Store(ctx, func() error {
			return d.store.InsertPrice(ctx, quote.Symbol, quote.Price, next)
		}); err != nil {
			span.RecordError(err)
			return 0, err
		}
	}
	if err := retry.Store(ctx, func() error {
		return d.store.AdvanceTick(ctx, next)
	}); err != nil {
		span.RecordError(err)
		return 0, err
	}
	d.metrics.SetCurrentTick(next)

	games, err := d.store.ActiveGames(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	d.metrics.SetGamesActive(int64(len(games)))

	now := d.now()
	group := d.pool.Group()
	for _, game := range games {
		g := game
		if g.Expired(now) {
			group.Submit(func() { d.closeOut(ctx, g, now) })
		} else {
			group.Submit(func() { d.tickGame(ctx, g.ID, next) })
		}
	}
	group.Wait()

	d.metrics.ObserveTickLatency(ctx, d.now().Sub(started).Seconds())
	d.logger.Debug("Tick pass complete", "tick", next, "games", len(games), "quotes", len(quotes))
	return next, nil
}

// fetchQuotes pulls the latest vendor quotes. A full outage is tolerated:
// the tick still advances, games mark against the previous prices.
func (d *Driver) fetchQuotes(ctx context.Context) map[string]core.Quote {
	quotes, err := d.feed.Quotes(ctx, d.symbols)
	if err != nil {
		outages := d.feedOutages.Add(1)
		d.logger.Warn("Price feed unavailable, ticking without new prices",
			"error", err, "consecutive", outages)
		if outages == feedOutageAlertAfter && d.alerts != nil {
			d.alerts.Alert(ctx, "Price feed outage",
				"Vendor quotes have failed on consecutive ticks", alert.Warning,
				map[string]string{"consecutive": strconv.FormatInt(outages, 10)})
		}
		return nil
	}
	d.feedOutages.Store(0)
	d.metrics.CountQuotes(ctx, int64(len(quotes)))
	return quotes
}

func (d *Driver) tickGame(ctx context.Context, gameID string, tick int64) {
	if err := d.engine.RunTick(ctx, gameID, tick); err != nil {
		d.metrics.CountTickFailure(ctx, gameID)
		d.logger.Error("Game tick failed", "game_id", gameID, "tick", tick, "error", err)
	}
}

func (d *Driver) closeOut(ctx context.Context, game core.Game, now time.Time) {
	if err := d.engine.CloseOut(ctx, game.ID, now); err != nil {
		d.metrics.CountTickFailure(ctx, game.ID)
		d.logger.Error("Game close-out failed", "game_id", game.ID, "error", err)
		return
	}
	d.metrics.CountGameCompleted(ctx)
	if d.alerts != nil {
		d.alerts.Alert(ctx, "Game completed",
			"A match reached its duration and was settled", alert.Info,
			map[string]string{"game_id": game.ID})
	}
}
