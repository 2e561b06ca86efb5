// Package scheduler keeps the global tick running: a self-rescheduling
// timer chain drives the tick driver, and a cron heartbeat restarts the
// chain if it ever dies.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"alpharoyale/internal/alert"
	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
)

// Name of the singleton schedule. There is exactly one tick chain per
// process regardless of how many games are active.
const ScheduleName = "global-tick"

// TickDriver is the slice of the driver the scheduler invokes.
type TickDriver interface {
	RunOnce(ctx context.Context) (int64, error)
}

// Alerter is the slice of the alert manager the scheduler needs.
type Alerter interface {
	Alert(ctx context.Context, title, message string, level alert.AlertLevel, fields map[string]string)
}

// Status is a snapshot of the schedule, served by the control server.
type Status struct {
	Name         string    `json:"name"`
	Running      bool      `json:"running"`
	TimerPending bool      `json:"timer_pending"`
	Period       string    `json:"period"`
	LastTick     int64     `json:"last_tick"`
	LastRunAt    time.Time `json:"last_run_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Scheduler owns the timer chain. The chain reschedules unconditionally
// after every run, failed or not; a missing tick must never stop the next
// one. The cron heartbeat is the safety net for the one way the chain can
// die anyway: a timer that was never re-armed because the process was
// mid-shutdown or the goroutine was lost.
type Scheduler struct {
	driver TickDriver
	period time.Duration
	alerts Alerter
	logger core.ILogger
	cron   *cron.Cron

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	pending   bool
	inFlight  bool
	running   bool
	lastTick  int64
	lastRunAt time.Time
	lastErr   string
}

// New creates a scheduler over the driver. heartbeatSpec is a cron spec
// such as "@every 1m".
func New(driver TickDriver, period time.Duration, heartbeatSpec string, alerts Alerter, logger core.ILogger) (*Scheduler, error) {
	s := &Scheduler{
		driver: driver,
		period: period,
		alerts: alerts,
		logger: logger.WithField("component", "scheduler"),
		cron:   cron.New(),
	}
	if _, err := s.cron.AddFunc(heartbeatSpec, s.heartbeat); err != nil {
		return nil, fmt.Errorf("invalid heartbeat spec %q: %w", heartbeatSpec, err)
	}
	return s, nil
}

// Start arms the chain and the heartbeat. The first tick fires after one
// full period.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.armLocked(s.period)
	s.cron.Start()
	s.logger.Info("Schedule started", "name", ScheduleName, "period", s.period)
}

// Stop halts the heartbeat and disarms the chain. In-flight driver runs
// finish; nothing new fires.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.cron.Stop()
	s.logger.Info("Schedule stopped", "name", ScheduleName)
}

// armLocked arms the next link of the chain. Callers hold s.mu.
func (s *Scheduler) armLocked(d time.Duration) {
	s.pending = true
	s.timer = time.AfterFunc(d, s.fire)
}

// fire runs one link of the chain, then re-arms unconditionally. While the
// driver runs, inFlight marks the chain as alive even though no timer is
// armed.
func (s *Scheduler) fire() {
	s.mu.Lock()
	s.pending = false
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	ctx := s.ctx
	s.mu.Unlock()

	s.runDriver(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.running {
		s.armLocked(s.period)
	}
}

// heartbeat restarts the chain only when no timer is armed and no link is
// mid-run; a run in flight re-arms itself when it finishes, and arming a
// second timer under it would fork the chain. Idempotent and a no-op in the
// healthy case.
func (s *Scheduler) heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.pending || s.inFlight {
		return
	}
	s.logger.Warn("Tick chain was dead, restarting", "name", ScheduleName)
	s.armLocked(s.period)
}

// TriggerNow runs the driver once, without touching the timer chain. Used
// by the operator endpoint.
func (s *Scheduler) TriggerNow(ctx context.Context) (int64, error) {
	return s.runDriver(ctx)
}

// runDriver invokes the driver with panic containment. A panicking tick is
// a scheduler failure, not a process crash: it is logged, alerted, and the
// chain carries on.
func (s *Scheduler) runDriver(ctx context.Context) (tick int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: tick panicked: %v", apperrors.ErrSchedulerFailure, r)
			s.recordRun(tick, err)
			s.logger.Error("Tick run panicked", "name", ScheduleName, "panic", r)
			if s.alerts != nil {
				s.alerts.Alert(ctx, "Scheduler failure",
					fmt.Sprintf("Tick run panicked: %v", r), alert.Error,
					map[string]string{"schedule": ScheduleName})
			}
		}
	}()

	tick, err = s.driver.RunOnce(ctx)
	s.recordRun(tick, err)
	if err != nil {
		s.logger.Error("Tick run failed", "name", ScheduleName, "error", err)
		if s.alerts != nil {
			s.alerts.Alert(ctx, "Tick run failed", err.Error(), alert.Error,
				map[string]string{"schedule": ScheduleName})
		}
	}
	return tick, err
}

func (s *Scheduler) recordRun(tick int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = time.Now()
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
		return
	}
	s.lastTick = tick
}

// Status returns a snapshot of the schedule.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:         ScheduleName,
		Running:      s.running,
		TimerPending: s.pending,
		Period:       s.period.String(),
		LastTick:     s.lastTick,
		LastRunAt:    s.lastRunAt,
		LastError:    s.lastErr,
	}
}
