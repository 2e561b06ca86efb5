package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTicksTotal          = "match_engine_ticks_total"
	MetricTickFailuresTotal   = "match_engine_tick_failures_total"
	MetricQuotesTotal         = "match_engine_quotes_total"
	MetricOrdersFilledTotal   = "match_engine_orders_filled_total"
	MetricOrdersRejectedTotal = "match_engine_orders_rejected_total"
	MetricGamesCompletedTotal = "match_engine_games_completed_total"
	MetricGamesActive         = "match_engine_games_active"
	MetricCurrentTick         = "match_engine_current_tick"
	MetricTickLatency         = "match_engine_tick_duration_seconds"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	TicksTotal          metric.Int64Counter
	TickFailuresTotal   metric.Int64Counter
	QuotesTotal         metric.Int64Counter
	OrdersFilledTotal   metric.Int64Counter
	OrdersRejectedTotal metric.Int64Counter
	GamesCompletedTotal metric.Int64Counter
	GamesActive         metric.Int64ObservableGauge
	CurrentTick         metric.Int64ObservableGauge
	TickLatency         metric.Float64Histogram

	// State for observable gauges
	mu          sync.RWMutex
	gamesActive int64
	currentTick int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TicksTotal, err = meter.Int64Counter(MetricTicksTotal, metric.WithDescription("Total driver tick invocations"))
	if err != nil {
		return err
	}

	m.TickFailuresTotal, err = meter.Int64Counter(MetricTickFailuresTotal, metric.WithDescription("Per-game tick pipelines that aborted"))
	if err != nil {
		return err
	}

	m.QuotesTotal, err = meter.Int64Counter(MetricQuotesTotal, metric.WithDescription("Total vendor quotes ingested"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders filled"))
	if err != nil {
		return err
	}

	m.OrdersRejectedTotal, err = meter.Int64Counter(MetricOrdersRejectedTotal, metric.WithDescription("Total orders rejected"))
	if err != nil {
		return err
	}

	m.GamesCompletedTotal, err = meter.Int64Counter(MetricGamesCompletedTotal, metric.WithDescription("Total games closed out"))
	if err != nil {
		return err
	}

	m.TickLatency, err = meter.Float64Histogram(MetricTickLatency, metric.WithDescription("Duration of one driver tick"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	// Observables
	m.GamesActive, err = meter.Int64ObservableGauge(MetricGamesActive, metric.WithDescription("Games currently active and started"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.gamesActive)
			return nil
		}))
	if err != nil {
		return err
	}

	m.CurrentTick, err = meter.Int64ObservableGauge(MetricCurrentTick, metric.WithDescription("Current global tick counter"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.currentTick)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetGamesActive(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gamesActive = n
}

func (m *MetricsHolder) SetCurrentTick(tick int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTick = tick
}

func (m *MetricsHolder) GetCurrentTick() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTick
}

// CountFill records a fill on the given symbol.
func (m *MetricsHolder) CountFill(ctx context.Context, symbol string, orderType string) {
	if m.OrdersFilledTotal == nil {
		return
	}
	m.OrdersFilledTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("order_type", orderType),
	))
}

// CountTick records one driver pass.
func (m *MetricsHolder) CountTick(ctx context.Context) {
	if m.TicksTotal == nil {
		return
	}
	m.TicksTotal.Add(ctx, 1)
}

// CountTickFailure records a per-game tick pipeline that aborted.
func (m *MetricsHolder) CountTickFailure(ctx context.Context, gameID string) {
	if m.TickFailuresTotal == nil {
		return
	}
	m.TickFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("game_id", gameID),
	))
}

// CountQuotes records quotes ingested in one driver pass.
func (m *MetricsHolder) CountQuotes(ctx context.Context, n int64) {
	if m.QuotesTotal == nil || n == 0 {
		return
	}
	m.QuotesTotal.Add(ctx, n)
}

// CountGameCompleted records one close-out.
func (m *MetricsHolder) CountGameCompleted(ctx context.Context) {
	if m.GamesCompletedTotal == nil {
		return
	}
	m.GamesCompletedTotal.Add(ctx, 1)
}

// ObserveTickLatency records the duration of one driver pass in seconds.
func (m *MetricsHolder) ObserveTickLatency(ctx context.Context, seconds float64) {
	if m.TickLatency == nil {
		return
	}
	m.TickLatency.Record(ctx, seconds)
}

// CountRejection records a rejection on the given symbol.
func (m *MetricsHolder) CountRejection(ctx context.Context, symbol string, reason string) {
	if m.OrdersRejectedTotal == nil {
		return
	}
	m.OrdersRejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("reason", reason),
	))
}
