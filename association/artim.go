package association

import (
	"net"
	"sync"
	"time"
)

// artim is the Association Request/Reject/Release timer. It is realised as
// the read deadline of the connection, so expiry surfaces as a timeout
// error from the reading goroutine.
type artim struct {
	conn net.Conn

	mu      sync.Mutex
	running bool
	timeout time.Duration
}

func newARTIM(conn net.Conn) *artim {
	return &artim{conn: conn}
}

// start arms the timer for d. A non-positive d stops it instead.
func (t *artim) start(d time.Duration) {
	if d <= 0 {
		t.stop()
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.timeout = d
	_ = t.conn.SetReadDeadline(time.Now().Add(d))
}

func (t *artim) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	_ = t.conn.SetReadDeadline(time.Time{})
}

// expired reports whether the timer was running; the duration is returned
// for error reporting.
func (t *artim) expired() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout, t.running
}
