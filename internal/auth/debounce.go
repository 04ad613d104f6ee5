package auth

import (
	"sync"
	"time"

	"storefront-sync/internal/clock"
	"storefront-sync/internal/model"
)

// debouncer collapses auth events that arrive within window of the previously
// handled one. The latest collapsed event is delivered when the window closes.
// The first INITIAL_SESSION is always handled immediately.
type debouncer struct {
	clock  clock.Clock
	window time.Duration
	handle func(model.AuthStateChange)

	mu          sync.Mutex
	lastHandled time.Time
	sawInitial  bool
	pending     *model.AuthStateChange
	timer       clock.Timer
	stopped     bool
}

func newDebouncer(c clock.Clock, window time.Duration, handle func(model.AuthStateChange)) *debouncer {
	return &debouncer{clock: c, window: window, handle: handle}
}

func (d *debouncer) push(ev model.AuthStateChange) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	now := d.clock.Now()

	immediate := false
	switch {
	case ev.Event == model.EventInitialSession && !d.sawInitial:
		d.sawInitial = true
		immediate = true
	case d.timer == nil && (d.lastHandled.IsZero() || now.Sub(d.lastHandled) >= d.window):
		immediate = true
	}

	if immediate {
		d.lastHandled = now
		d.mu.Unlock()
		d.handle(ev)
		return
	}

	d.pending = &ev
	if d.timer == nil {
		wait := d.window - now.Sub(d.lastHandled)
		if wait < 0 {
			wait = 0
		}
		d.timer = d.clock.AfterFunc(wait, d.flush)
	}
	d.mu.Unlock()
}

func (d *debouncer) flush() {
	d.mu.Lock()
	ev := d.pending
	d.pending = nil
	d.timer = nil
	if d.stopped || ev == nil {
		d.mu.Unlock()
		return
	}
	d.lastHandled = d.clock.Now()
	d.mu.Unlock()

	d.handle(*ev)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
