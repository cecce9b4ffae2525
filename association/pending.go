package association

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caio-sobreiro/dicomul/types"
)

// ResponseHandler receives the responses to one outgoing DIMSE request.
type ResponseHandler interface {
	// HandleResponse is called for every response, pending or final. For a
	// pending response, returning false stops delivery of further responses.
	HandleResponse(msg *types.Message, data []byte) bool
	// HandleClose is called at most once when the request fails before its
	// final response: on response timeout or when the association closes.
	HandleClose(err error)
}

// lastMessageID is shared by every association in the process.
var lastMessageID atomic.Uint32

type pendingOp struct {
	msgID     uint16
	contextID byte
	command   uint16
	handler   ResponseHandler
	timer     *time.Timer
	gen       uint64
}

// pendingTable tracks outgoing requests awaiting their final response and
// enforces the negotiated asynchronous operations window.
type pendingTable struct {
	mu       sync.Mutex
	ops      map[uint16]*pendingOp
	limit    int
	changed  chan struct{}
	closed   bool
	closeErr error

	// onTimeout runs without the lock after op has been removed.
	onTimeout func(op *pendingOp, d time.Duration)
	metrics   *associationMetrics
}

func newPendingTable(metrics *associationMetrics) *pendingTable {
	return &pendingTable{
		ops:     make(map[uint16]*pendingOp),
		limit:   1,
		changed: make(chan struct{}),
		metrics: metrics,
	}
}

// setLimit sets the operations window; 0 means unlimited.
func (t *pendingTable) setLimit(limit uint16) {
	t.mu.Lock()
	t.limit = int(limit)
	t.broadcastLocked()
	t.mu.Unlock()
}

func (t *pendingTable) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

func (t *pendingTable) fullLocked() bool {
	if len(t.ops) >= 0xFFFF {
		return true
	}
	return t.limit > 0 && len(t.ops) >= t.limit
}

// register waits for a free slot, assigns op a message ID that is not
// outstanding on this association and adds it to the table.
func (t *pendingTable) register(ctx context.Context, op *pendingOp) error {
	t.mu.Lock()
	for {
		if t.closed {
			err := t.closeErr
			t.mu.Unlock()
			return err
		}
		if !t.fullLocked() {
			break
		}
		changed := t.changed
		t.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
		t.mu.Lock()
	}
	op.msgID = t.nextMessageIDLocked()
	t.ops[op.msgID] = op
	t.mu.Unlock()
	t.metrics.pendingDelta(1)
	return nil
}

func (t *pendingTable) nextMessageIDLocked() uint16 {
	for {
		id := uint16(lastMessageID.Add(1))
		if id == 0 {
			continue
		}
		if _, busy := t.ops[id]; !busy {
			return id
		}
	}
}

// arm (re)starts the response timer of op. A non-positive d disarms it.
func (t *pendingTable) arm(op *pendingOp, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ops[op.msgID] != op {
		return
	}
	if op.timer != nil {
		op.timer.Stop()
		op.timer = nil
	}
	op.gen++
	if d <= 0 {
		return
	}
	gen := op.gen
	op.timer = time.AfterFunc(d, func() { t.expire(op, gen, d) })
}

func (t *pendingTable) expire(op *pendingOp, gen uint64, d time.Duration) {
	t.mu.Lock()
	if t.ops[op.msgID] != op || op.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.ops, op.msgID)
	t.broadcastLocked()
	t.mu.Unlock()
	t.metrics.pendingDelta(-1)
	if t.onTimeout != nil {
		t.onTimeout(op, d)
	}
}

func (t *pendingTable) lookup(msgID uint16) *pendingOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ops[msgID]
}

// remove deletes the operation registered under msgID and returns it.
func (t *pendingTable) remove(msgID uint16) *pendingOp {
	t.mu.Lock()
	op, ok := t.ops[msgID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	t.removeLocked(op)
	t.mu.Unlock()
	t.metrics.pendingDelta(-1)
	return op
}

// removeOp deletes op only if it is still the registered operation for its ID.
func (t *pendingTable) removeOp(op *pendingOp) bool {
	t.mu.Lock()
	if t.ops[op.msgID] != op {
		t.mu.Unlock()
		return false
	}
	t.removeLocked(op)
	t.mu.Unlock()
	t.metrics.pendingDelta(-1)
	return true
}

func (t *pendingTable) removeLocked(op *pendingOp) {
	if op.timer != nil {
		op.timer.Stop()
		op.timer = nil
	}
	op.gen++
	delete(t.ops, op.msgID)
	t.broadcastLocked()
}

// close rejects further registrations with err and returns the operations
// still outstanding. Only the first call returns anything.
func (t *pendingTable) close(err error) []*pendingOp {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.closeErr = err
	ops := make([]*pendingOp, 0, len(t.ops))
	for id, op := range t.ops {
		if op.timer != nil {
			op.timer.Stop()
			op.timer = nil
		}
		op.gen++
		ops = append(ops, op)
		delete(t.ops, id)
	}
	t.broadcastLocked()
	t.mu.Unlock()
	t.metrics.pendingDelta(-len(ops))
	return ops
}

func (t *pendingTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// waitIdle blocks until no operation is outstanding or the table closes.
func (t *pendingTable) waitIdle(ctx context.Context) error {
	for {
		t.mu.Lock()
		if len(t.ops) == 0 || t.closed {
			t.mu.Unlock()
			return nil
		}
		changed := t.changed
		t.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
