package forwarder

import (
	"sync"
	"time"

	"github.com/okian/gridedge/internal/domain/model"
)

// State is the lifecycle position of one delivery.
type State string

// Delivery states. Delivered and Failed are terminal.
const (
	StateAttempting State = "attempting"
	StateWaiting    State = "waiting"
	StateDelivered  State = "delivered"
	StateFailed     State = "failed"
)

// Outcome is the terminal result reported to the caller.
type Outcome string

// Terminal outcomes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// Result describes how a Forward call ended. Delays holds the backoff
// scheduled after each failed attempt that was retried.
type Result struct {
	Outcome  Outcome
	Attempts int
	Delays   []time.Duration
	Err      error
}

// delivery is one reading moving through the state machine. Transitions
// happen under mu; done receives exactly one Result.
type delivery struct {
	id     string
	record model.StoreRecord

	mu        sync.Mutex
	state     State
	attempts  int
	delays    []time.Duration
	abandoned bool
	timer     *time.Timer

	done chan Result
}

func newDelivery(id string, rec model.StoreRecord) *delivery {
	return &delivery{
		id:     id,
		record: rec,
		state:  StateAttempting,
		done:   make(chan Result, 1),
	}
}

func (d *delivery) terminal() bool {
	return d.state == StateDelivered || d.state == StateFailed
}

// beginAttempt moves to attempting and returns the 1-based attempt number,
// or false if the delivery must not be attempted anymore.
func (d *delivery) beginAttempt() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminal() || d.abandoned {
		return 0, false
	}
	d.state = StateAttempting
	d.attempts++
	return d.attempts, true
}

// finish moves to a terminal state and publishes the result once.
func (d *delivery) finish(state State, err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finishLocked(state, err)
}

func (d *delivery) finishLocked(state State, err error) bool {
	if d.terminal() {
		return false
	}
	d.state = state
	if d.timer != nil {
		d.timer.Stop()
	}
	outcome := OutcomeFailed
	if state == StateDelivered {
		outcome = OutcomeDelivered
	}
	d.done <- Result{
		Outcome:  outcome,
		Attempts: d.attempts,
		Delays:   append([]time.Duration(nil), d.delays...),
		Err:      err,
	}
	return true
}

// wait moves to waiting and arms the retry timer. It returns false if the
// delivery was abandoned or finished in the meantime.
func (d *delivery) wait(delay time.Duration, retry func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminal() || d.abandoned {
		return false
	}
	d.state = StateWaiting
	d.delays = append(d.delays, delay)
	d.timer = time.AfterFunc(delay, retry)
	return true
}

// abandon records that the caller stopped waiting. A pending retry is
// cancelled; an attempt already running is left to its own timeout.
func (d *delivery) abandon() (attempts int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.abandoned = true
	if d.timer != nil {
		d.timer.Stop()
	}
	return d.attempts
}

func (d *delivery) isAbandoned() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.abandoned
}

// State returns the current state.
func (d *delivery) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
