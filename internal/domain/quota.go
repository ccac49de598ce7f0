package domain

import "time"

// QuotaRule caps an operation class at Requests actions per Window.
type QuotaRule struct {
	Requests int
	Window   time.Duration
}

// Valid reports whether both limits are positive.
func (r QuotaRule) Valid() bool {
	return r.Requests > 0 && r.Window > 0
}

// QuotaDecision is the outcome of a single ledger check.
type QuotaDecision struct {
	Admitted  bool
	Limit     int
	Remaining int
	WindowEnd time.Time
}

// RetryAfter returns how long a rejected caller should wait, rounded up to
// whole seconds. Admitted decisions return zero.
func (d QuotaDecision) RetryAfter(now time.Time) time.Duration {
	if d.Admitted || !now.Before(d.WindowEnd) {
		return 0
	}
	wait := d.WindowEnd.Sub(now)
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	return wait
}
