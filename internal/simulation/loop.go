package simulation

import (
	"context"
	"time"
)

// StepFunc advances the simulation by a fixed timestep and may emit side effects.
type StepFunc func(step time.Duration)

// Loop drives the session at a fixed timestep. Wall-clock jitter is absorbed
// by an accumulator, so every step the session sees is exactly the same
// duration and runs stay reproducible.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	monitor  *TickMonitor
	ticker   *time.Ticker
	done     chan struct{}
}

// NewLoop targets the provided steps per second, falling back to 60 Hz for
// non-positive rates, and records per-step wall durations into monitor.
func NewLoop(targetHz float64, step StepFunc, monitor *TickMonitor) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{step: interval, stepFunc: step, monitor: monitor}
}

// Start launches the tick goroutine; it runs until the context is cancelled.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}
	l.ticker = time.NewTicker(l.step)
	l.done = make(chan struct{})
	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.ticker.Stop()

	last := time.Now()
	var owed time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-l.ticker.C:
			owed += now.Sub(last)
			last = now
			//1.- Drain whole fixed steps; a slow tick catches up on the next one.
			for owed >= l.step {
				began := time.Now()
				l.stepFunc(l.step)
				l.monitor.Observe(time.Since(began))
				owed -= l.step
			}
		}
	}
}

// Stop halts the ticker and waits for the run goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.ticker != nil {
		l.ticker.Stop()
	}
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
