package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Tickers fire when Advance
// crosses their next deadline; Sleep returns immediately.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake creates a fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake time forward, firing any tickers whose deadlines
// fall inside the window. Each ticker fires at most once per Advance call;
// ticks are delivered on a buffered channel and never block.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	tickers := make([]*fakeTicker, len(f.tickers))
	copy(tickers, f.tickers)
	f.mu.Unlock()

	for _, t := range tickers {
		t.maybeFire(now)
	}
}

// NewTicker returns a ticker driven by Advance.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		ch:   make(chan time.Time, 1),
		next: f.now.Add(d),
		step: d,
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Sleep returns immediately; fake time only moves via Advance.
func (f *Fake) Sleep(d time.Duration) {}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	next    time.Time
	step    time.Duration
	stopped bool
}

func (t *fakeTicker) maybeFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.step)
	}
	select {
	case t.ch <- now:
	default:
	}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}
