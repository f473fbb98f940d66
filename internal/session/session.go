// Package session gates whether the current identity is considered
// valid. States move Anonymous -> Authenticated -> WarningWindow ->
// Expired; expiry fires the logout side effect exactly once.
package session

import (
	"sync"
	"time"
)

type State string

const (
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
	StateWarning       State = "warning"
	StateExpired       State = "expired"
)

// Timer is the session lifetime state machine. The inactivity timeout
// counts from the last recorded activity; the warning window opens a
// fixed lead before expiry. Activity in the warning window deliberately
// does not reset the clock: once warned, only an explicit Extend keeps
// the session alive.
type Timer struct {
	timeout time.Duration
	lead    time.Duration

	onWarn   func()
	onExpire func()

	mu        sync.Mutex
	state     State
	warnTimer *time.Timer
	leadTimer *time.Timer
	loggedOut bool
}

// Options carries the optional side-effect hooks.
type Options struct {
	// OnWarn fires on entering the warning window.
	OnWarn func()
	// OnExpire fires exactly once on expiry and performs logout.
	OnExpire func()
}

func New(timeout, lead time.Duration, opts Options) *Timer {
	if lead >= timeout {
		lead = timeout / 2
	}
	return &Timer{
		timeout:  timeout,
		lead:     lead,
		onWarn:   opts.OnWarn,
		onExpire: opts.OnExpire,
		state:    StateAnonymous,
	}
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Authenticate moves to Authenticated and starts the inactivity clock.
// Valid from Anonymous and Expired (a fresh login).
func (t *Timer) Authenticate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateAuthenticated
	t.loggedOut = false
	t.restartLocked()
}

// Touch records user activity. Only Authenticated resets the clock;
// warning-window activity is ignored by design.
func (t *Timer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateAuthenticated {
		return
	}
	t.restartLocked()
}

// Extend is the explicit acknowledgement that returns a warned session
// to Authenticated. It is the only way out of the warning window.
func (t *Timer) Extend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateWarning {
		return
	}
	t.state = StateAuthenticated
	t.restartLocked()
}

// Stop cancels pending transitions without firing logout. Used on
// explicit logout and teardown; safe to call repeatedly.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimersLocked()
	t.state = StateAnonymous
}

func (t *Timer) restartLocked() {
	t.stopTimersLocked()
	t.warnTimer = time.AfterFunc(t.timeout-t.lead, t.enterWarning)
}

func (t *Timer) stopTimersLocked() {
	if t.warnTimer != nil {
		t.warnTimer.Stop()
		t.warnTimer = nil
	}
	if t.leadTimer != nil {
		t.leadTimer.Stop()
		t.leadTimer = nil
	}
}

func (t *Timer) enterWarning() {
	t.mu.Lock()
	if t.state != StateAuthenticated {
		t.mu.Unlock()
		return
	}
	t.state = StateWarning
	t.leadTimer = time.AfterFunc(t.lead, t.expire)
	warn := t.onWarn
	t.mu.Unlock()
	if warn != nil {
		warn()
	}
}

func (t *Timer) expire() {
	t.mu.Lock()
	if t.state != StateWarning {
		t.mu.Unlock()
		return
	}
	t.state = StateExpired
	fire := !t.loggedOut
	t.loggedOut = true
	expire := t.onExpire
	t.mu.Unlock()
	if fire && expire != nil {
		expire()
	}
}
