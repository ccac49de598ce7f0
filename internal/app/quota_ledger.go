package app

import (
	"sync"
	"time"

	"journal/internal/domain"

	"github.com/cespare/xxhash/v2"
	"k8s.io/utils/clock"
)

const ledgerShards = 64

// QuotaLedger counts actions per identifier in fixed windows.
//
// A window opens on the first action for an identifier and lasts for the
// requested duration; once it has elapsed the next action opens a new one.
// Counts never carry across windows, so up to twice the limit can be admitted
// around a boundary.
type QuotaLedger struct {
	clock  clock.PassiveClock
	shards [ledgerShards]ledgerShard
}

type ledgerShard struct {
	mu      sync.Mutex
	entries map[string]*quotaEntry
}

type quotaEntry struct {
	count     int
	windowEnd time.Time
}

// NewQuotaLedger creates an empty ledger reading time from clk.
func NewQuotaLedger(clk clock.PassiveClock) *QuotaLedger {
	if clk == nil {
		clk = clock.RealClock{}
	}
	l := &QuotaLedger{clock: clk}
	for i := range l.shards {
		l.shards[i].entries = make(map[string]*quotaEntry)
	}
	return l
}

// Check records one action for identifier and reports whether it is
// admitted under maxRequests per window. Rejected actions are not counted.
func (l *QuotaLedger) Check(identifier string, maxRequests int, window time.Duration) domain.QuotaDecision {
	if maxRequests <= 0 || window <= 0 {
		return domain.QuotaDecision{Limit: maxRequests, WindowEnd: l.clock.Now()}
	}

	sh := l.shard(identifier)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := l.clock.Now()
	e, ok := sh.entries[identifier]
	if !ok || now.After(e.windowEnd) {
		e = &quotaEntry{count: 1, windowEnd: now.Add(window)}
		sh.entries[identifier] = e
		return domain.QuotaDecision{Admitted: true, Limit: maxRequests, Remaining: maxRequests - 1, WindowEnd: e.windowEnd}
	}

	if e.count >= maxRequests {
		return domain.QuotaDecision{Admitted: false, Limit: maxRequests, Remaining: 0, WindowEnd: e.windowEnd}
	}

	e.count++
	return domain.QuotaDecision{Admitted: true, Limit: maxRequests, Remaining: maxRequests - e.count, WindowEnd: e.windowEnd}
}

// Sweep drops every entry whose window has elapsed and returns how many were
// removed.
func (l *QuotaLedger) Sweep() int {
	removed := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		now := l.clock.Now()
		for id, e := range sh.entries {
			if now.After(e.windowEnd) {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of identifiers currently tracked.
func (l *QuotaLedger) Len() int {
	n := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (l *QuotaLedger) shard(identifier string) *ledgerShard {
	return &l.shards[xxhash.Sum64String(identifier)%ledgerShards]
}
