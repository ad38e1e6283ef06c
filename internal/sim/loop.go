package sim

import (
	"context"
	"time"

	"arenasync/logging"
)

// LoopConfig tunes the fixed-timestep runner.
type LoopConfig struct {
	TickRate int
	// CatchupMaxTicks caps the simulated delta after a stall, in ticks.
	CatchupMaxTicks int
}

// LoopTickContext describes one step before it runs.
type LoopTickContext struct {
	Tick    uint64
	Now     time.Time
	Delta   float64
	Clamped bool
}

// LoopStepResult is handed to AfterStep once the stepper has advanced.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
}

// LoopHooks lets the host act on each step. AfterStep runs on the loop
// goroutine.
type LoopHooks struct {
	AfterStep func(ctx context.Context, result LoopStepResult)
}

// Loop drives a Stepper at a fixed tick rate.
type Loop struct {
	stepper Stepper
	config  LoopConfig
	hooks   LoopHooks
	clock   logging.Clock
	tick    uint64
}

func NewLoop(stepper Stepper, cfg LoopConfig, hooks LoopHooks, clock logging.Clock) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 15
	}
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	return &Loop{stepper: stepper, config: cfg, hooks: hooks, clock: clock}
}

// Budget is the wall time available to one tick.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.config.TickRate)
}

// Advance executes a single step.
func (l *Loop) Advance(ctx context.Context, tc LoopTickContext) LoopStepResult {
	start := l.clock.Now()
	l.stepper.Step(tc.Delta)
	result := LoopStepResult{
		Tick:         tc.Tick,
		Now:          tc.Now,
		Delta:        tc.Delta,
		Budget:       l.Budget(),
		Duration:     l.clock.Now().Sub(start),
		ClampedDelta: tc.Clamped,
	}
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(ctx, result)
		result.Duration = l.clock.Now().Sub(start)
	}
	return result
}

// Run steps until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Budget())
	defer ticker.Stop()

	budgetSeconds := 1.0 / float64(l.config.TickRate)
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}

	last := l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			tc := LoopTickContext{Tick: l.tick, Now: now, Delta: dt, Clamped: clamped}
			l.tick++
			l.Advance(ctx, tc)
		}
	}
}
