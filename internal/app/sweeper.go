package app

import (
	"context"
	"time"

	"journal/internal/monitoring"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
)

// SweepFunc reclaims expired state and reports how many items it removed.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a fixed interval until its context ends.
type Sweeper struct {
	name     string
	interval time.Duration
	clock    clock.WithTicker
	sweep    SweepFunc
	metrics  *monitoring.Metrics
}

// NewSweeper creates a Sweeper. name labels logs and metrics.
func NewSweeper(name string, interval time.Duration, clk clock.WithTicker, fn SweepFunc, m *monitoring.Metrics) *Sweeper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sweeper{name: name, interval: interval, clock: clk, sweep: fn, metrics: m}
}

// LedgerSweep adapts a QuotaLedger to a SweepFunc.
func LedgerSweep(l *QuotaLedger) SweepFunc {
	return func(context.Context) (int, error) {
		return l.Sweep(), nil
	}
}

// Run sweeps once per interval and returns nil once ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	t := s.clock.NewTicker(s.interval)
	defer t.Stop()

	klog.V(1).InfoS("sweeper started", "sweeper", s.name, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			klog.V(1).InfoS("sweeper stopped", "sweeper", s.name)
			return nil
		case <-t.C():
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of removed items.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.sweep(ctx)
	if err != nil {
		klog.ErrorS(err, "sweep failed", "sweeper", s.name)
		return 0
	}
	s.metrics.ObserveSweep(s.name, n)
	if n > 0 {
		klog.V(2).InfoS("swept expired entries", "sweeper", s.name, "removed", n)
	}
	return n
}
