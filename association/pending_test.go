package association

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/types"
)

func TestPendingTableAdmission(t *testing.T) {
	table := newPendingTable(nil)
	table.setLimit(1)

	first := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), first))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := table.register(ctx, &pendingOp{handler: newRecordingHandler()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, table.count())

	admitted := make(chan error, 1)
	second := &pendingOp{handler: newRecordingHandler()}
	go func() { admitted <- table.register(context.Background(), second) }()

	select {
	case <-admitted:
		t.Fatal("second operation admitted while window full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Same(t, first, table.remove(first.msgID))
	require.NoError(t, <-admitted)
	assert.Same(t, second, table.lookup(second.msgID))
	assert.Nil(t, table.lookup(first.msgID))
}

func TestPendingTableUnlimited(t *testing.T) {
	table := newPendingTable(nil)
	table.setLimit(0)

	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		op := &pendingOp{handler: newRecordingHandler()}
		require.NoError(t, table.register(context.Background(), op))
		assert.NotZero(t, op.msgID)
		assert.False(t, seen[op.msgID], "duplicate message ID %d", op.msgID)
		seen[op.msgID] = true
	}
	assert.Equal(t, 1000, table.count())
}

func TestPendingTableSkipsZeroAndBusyIDs(t *testing.T) {
	table := newPendingTable(nil)
	table.setLimit(0)

	lastMessageID.Store(0xFFFE)
	a := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), a))
	assert.Equal(t, uint16(0xFFFF), a.msgID)

	b := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), b))
	assert.Equal(t, uint16(1), b.msgID)

	// rewind so the counter would hand out an ID still in use
	lastMessageID.Store(0xFFFE)
	c := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), c))
	assert.Equal(t, uint16(2), c.msgID)
}

func TestPendingTableCloseNotifiesOnce(t *testing.T) {
	table := newPendingTable(nil)
	table.setLimit(1)

	op := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), op))

	blocked := make(chan error, 1)
	go func() { blocked <- table.register(context.Background(), &pendingOp{handler: newRecordingHandler()}) }()
	time.Sleep(20 * time.Millisecond)

	cause := errors.New("gone")
	ops := table.close(cause)
	require.Len(t, ops, 1)
	assert.Same(t, op, ops[0])
	assert.Empty(t, table.close(cause))

	assert.ErrorIs(t, <-blocked, cause)
	assert.ErrorIs(t, table.register(context.Background(), &pendingOp{}), cause)
	assert.NoError(t, table.waitIdle(context.Background()))
}

func TestPendingTableTimeout(t *testing.T) {
	table := newPendingTable(nil)
	table.setLimit(0)
	expired := make(chan *pendingOp, 1)
	table.onTimeout = func(op *pendingOp, d time.Duration) { expired <- op }

	op := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), op))
	table.arm(op, 20*time.Millisecond)

	select {
	case got := <-expired:
		assert.Same(t, op, got)
	case <-time.After(time.Second):
		t.Fatal("operation did not expire")
	}
	assert.Nil(t, table.lookup(op.msgID))
}

func TestPendingTableRearmAndRemoveStopTimer(t *testing.T) {
	table := newPendingTable(nil)
	table.setLimit(0)
	expired := make(chan *pendingOp, 2)
	table.onTimeout = func(op *pendingOp, d time.Duration) { expired <- op }

	op := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), op))
	table.arm(op, 30*time.Millisecond)
	table.arm(op, time.Hour)
	assert.True(t, table.removeOp(op))
	assert.False(t, table.removeOp(op))

	select {
	case <-expired:
		t.Fatal("removed operation expired")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestPendingTableWaitIdle(t *testing.T) {
	table := newPendingTable(nil)
	op := &pendingOp{handler: newRecordingHandler()}
	require.NoError(t, table.register(context.Background(), op))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, table.waitIdle(ctx), context.DeadlineExceeded)

	go table.remove(op.msgID)
	assert.NoError(t, table.waitIdle(context.Background()))
}

func TestFutureResponse(t *testing.T) {
	ctx := context.Background()
	f := NewFutureResponse()
	assert.False(t, f.Done())

	assert.True(t, f.HandleResponse(&types.Message{Status: types.StatusPending}, []byte{1}))
	assert.True(t, f.HandleResponse(&types.Message{Status: types.StatusSuccess}, nil))
	f.HandleClose(errors.New("ignored after final response"))
	assert.True(t, f.Done())

	r, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.StatusPending), r.Message.Status)
	r, err = f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.StatusSuccess), r.Message.Status)
	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFutureResponseFailure(t *testing.T) {
	f := NewFutureResponse()
	done := make(chan error, 1)
	go func() {
		_, err := f.Wait(context.Background())
		done <- err
	}()

	f.HandleClose(dicomerrors.NewTimeoutError("C-ECHO-RQ", "1s"))
	var timeoutErr *dicomerrors.TimeoutError
	assert.ErrorAs(t, <-done, &timeoutErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFutureResponse().Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
