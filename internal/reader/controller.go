package reader

import (
	"fmt"
	"sync"
	"time"

	"github.com/attendancekit/nfc-backend/internal/logging"
)

const (
	// DefaultPollTimeout bounds a single poll attempt and therefore the
	// worst-case latency of a stop request.
	DefaultPollTimeout = 500 * time.Millisecond
	// DefaultReadTimeout is the one-shot read window.
	DefaultReadTimeout = 5 * time.Second

	// stopGracePeriod is how long Stop waits for the loop to quiesce
	// before forcing the state back to idle.
	stopGracePeriod = 5 * time.Second

	// maxConsecutiveFaults is how many poll faults in a row force the
	// loop back to idle.
	maxConsecutiveFaults = 5
)

// State is the continuous-mode lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Controller owns the continuous-read loop and mediates exclusive access
// to the reader transport between that loop and one-shot reads. One
// instance exists per process, constructed at startup and passed to every
// call site.
type Controller struct {
	transport Transport
	buf       *ScanBuffer

	// gate serializes hardware access: at most one poll in flight,
	// whether from the loop or from ReadOnce. Never held across buffer
	// mutation or state transitions.
	gate sync.Mutex

	// mu guards the lifecycle fields below. Short-held only; never held
	// during a poll.
	mu      sync.Mutex
	state   State
	last    UID
	faulted bool
	stop    chan struct{}
	done    chan struct{}

	pollTimeout time.Duration
}

// NewController creates the process-wide scan controller. A non-positive
// pollTimeout falls back to DefaultPollTimeout.
func NewController(transport Transport, buf *ScanBuffer, pollTimeout time.Duration) *Controller {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Controller{
		transport:   transport,
		buf:         buf,
		pollTimeout: pollTimeout,
	}
}

// Start launches the continuous scan loop. Returns ErrAlreadyRunning when
// the loop is already active or still stopping.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateRunning
	c.last = nil
	c.faulted = false
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	c.gate.Lock()
	err := c.transport.Open()
	c.gate.Unlock()
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return fmt.Errorf("open reader: %w", err)
	}

	go c.loop(stop, done)
	logging.Info(logging.CatScan, "Continuous mode started", nil)
	return nil
}

// Stop signals the loop to exit and waits for it to quiesce, bounded by a
// grace period. A no-op when continuous mode is not running; always
// eventually returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		logging.Error(logging.CatScan, "Scan loop did not stop within grace period", nil)
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	logging.Info(logging.CatScan, "Continuous mode stopped", nil)
}

// loop is the background polling loop. Cancellation is observed between
// poll attempts; the poll timeout bounds stop latency.
func (c *Controller) loop(stop, done chan struct{}) {
	defer close(done)

	faults := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		c.gate.Lock()
		res := c.transport.Poll(c.pollTimeout)
		c.gate.Unlock()

		switch {
		case res.Err != nil:
			faults++
			logging.Warn(logging.CatScan, "Poll fault", map[string]any{
				"error":       res.Err.Error(),
				"consecutive": faults,
			})
			if faults >= maxConsecutiveFaults {
				logging.Error(logging.CatScan, "Too many consecutive reader faults, leaving continuous mode", nil)
				c.mu.Lock()
				c.faulted = true
				c.state = StateIdle
				c.mu.Unlock()
				return
			}

		case res.Present():
			faults = 0
			c.mu.Lock()
			ok := accepted(res.UID, c.last)
			if ok {
				c.last = res.UID
			}
			c.mu.Unlock()

			if ok {
				c.buf.Push(res.UID)
				logging.Info(logging.CatScan, "Card accepted", map[string]any{
					"uid": res.UID.Hex(),
				})
			} else {
				logging.Debug(logging.CatScan, "Duplicate card ignored", map[string]any{
					"uid": res.UID.Hex(),
				})
			}

		default:
			// No card within the poll window.
			faults = 0
		}
	}
}

// ReadOnce performs a single blocking poll-and-return, competing with the
// continuous loop for exclusive reader access. If the controller is idle
// this is the only reader-access path.
func (c *Controller) ReadOnce(timeout time.Duration) ScanResult {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	if err := c.transport.Open(); err != nil {
		return ScanResult{Err: err}
	}
	return c.transport.Poll(timeout)
}

// Drain atomically returns and clears the accumulated scan results.
func (c *Controller) Drain() []UID {
	return c.buf.Drain()
}

// Running reports whether continuous mode is currently active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning
}

// Status describes the controller for status queries.
type Status struct {
	State    State `json:"state"`
	Running  bool  `json:"running"`
	Buffered int   `json:"buffered"`
	Faulted  bool  `json:"faulted"`
}

// Status returns a snapshot of the controller state. Faulted is set when
// the loop was forced idle by consecutive transport faults and clears on
// the next successful Start.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state, faulted := c.state, c.faulted
	c.mu.Unlock()

	return Status{
		State:    state,
		Running:  state == StateRunning,
		Buffered: c.buf.Len(),
		Faulted:  faulted,
	}
}

// Shutdown stops continuous mode and closes the transport. Called once at
// process exit.
func (c *Controller) Shutdown() {
	c.Stop()

	c.gate.Lock()
	defer c.gate.Unlock()
	if err := c.transport.Close(); err != nil {
		logging.Warn(logging.CatReader, "Transport close failed", map[string]any{
			"error": err.Error(),
		})
	}
}
