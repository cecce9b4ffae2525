package association

import (
	"context"
	"io"
	"sync"

	"github.com/caio-sobreiro/dicomul/types"
)

// Response is one DIMSE response with its optional data set.
type Response struct {
	Message *types.Message
	Data    []byte
}

// FutureResponse is a ResponseHandler that queues responses for a caller
// consuming them with Next or Wait.
type FutureResponse struct {
	mu      sync.Mutex
	queue   []*Response
	final   bool
	err     error
	changed chan struct{}
}

// NewFutureResponse returns an empty FutureResponse.
func NewFutureResponse() *FutureResponse {
	return &FutureResponse{changed: make(chan struct{})}
}

// HandleResponse queues a response for Next.
func (f *FutureResponse) HandleResponse(msg *types.Message, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, &Response{Message: msg, Data: data})
	if !types.IsPendingStatus(msg.Status) {
		f.final = true
	}
	f.broadcastLocked()
	return true
}

// HandleClose fails the request with err unless the final response arrived.
func (f *FutureResponse) HandleClose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.final || f.err != nil {
		return
	}
	f.err = err
	f.broadcastLocked()
}

func (f *FutureResponse) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// Next returns the next response. After the final response has been
// consumed it returns io.EOF; if the request failed first it returns the
// failure.
func (f *FutureResponse) Next(ctx context.Context) (*Response, error) {
	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			r := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return r, nil
		}
		if f.final {
			f.mu.Unlock()
			return nil, io.EOF
		}
		if f.err != nil {
			err := f.err
			f.mu.Unlock()
			return nil, err
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Wait discards pending responses and returns the final one.
func (f *FutureResponse) Wait(ctx context.Context) (*Response, error) {
	var last *Response
	for {
		r, err := f.Next(ctx)
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return nil, err
		}
		last = r
	}
}

// Done reports whether the final response has arrived or the request failed.
func (f *FutureResponse) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.final || f.err != nil
}
