// Package association implements the DICOM Upper Layer protocol machine:
// association establishment, data transfer, orderly release and abort over
// a single transport connection.
package association

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/pdu"
)

// abortWriteTimeout bounds the best-effort A-ABORT write.
const abortWriteTimeout = 2 * time.Second

// lastSerial numbers associations process-wide for naming.
var lastSerial atomic.Uint64

// CloseListener is notified once when an association's transport closes.
type CloseListener interface {
	OnClose(a *Association)
}

// CloseListenerFunc adapts a function to CloseListener.
type CloseListenerFunc func(a *Association)

func (f CloseListenerFunc) OnClose(a *Association) { f(a) }

// Association is one DICOM association over a transport connection, either
// requested locally (initiator) or accepted from a peer (acceptor).
//
// All methods are safe for concurrent use. A single reader goroutine, run
// through the owning Device, receives PDUs and drives the state machine;
// callers invoke operations from any goroutine.
type Association struct {
	serial      uint64
	id          uuid.UUID
	isInitiator bool
	device      *Device
	conn        net.Conn
	cfg         Config
	encoder     *pdu.Encoder
	artim       *artim
	pending     *pendingTable
	metrics     *associationMetrics
	started     time.Time

	// writeMu serializes state check, transition and write of one
	// logical unit. It is always acquired before mu.
	writeMu sync.Mutex

	mu               sync.Mutex
	state            State
	changed          chan struct{}
	name             string
	logger           *slog.Logger
	ae               *ApplicationEntity
	rq               *pdu.AssociateRQ
	ac               *pdu.AssociateAC
	pcs              *pcTable
	maxPDULengthSend uint32
	err              error
	properties       map[string]any
	listener         CloseListener
	incoming         map[uint16]context.CancelFunc

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func newAssociation(d *Device, ae *ApplicationEntity, conn net.Conn, isInitiator bool, initial State) *Association {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Association{
		serial:      lastSerial.Add(1),
		id:          uuid.New(),
		isInitiator: isInitiator,
		device:      d,
		conn:        conn,
		cfg:         d.cfg,
		encoder:     pdu.NewEncoder(conn),
		artim:       newARTIM(conn),
		metrics:     d.metrics,
		started:     time.Now(),
		state:       initial,
		changed:     make(chan struct{}),
		ae:          ae,
		properties:  make(map[string]any),
		incoming:    make(map[uint16]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	a.pending = newPendingTable(a.metrics)
	a.pending.onTimeout = a.onResponseTimeout
	a.renameLocked(fmt.Sprintf("Association-%d", a.serial))
	return a
}

// renameLocked updates the name and the logger derived from it.
func (a *Association) renameLocked(name string) {
	a.name = name
	a.logger = a.device.logger.With("association", name, "assoc_id", a.id.String())
}

func (a *Association) log() *slog.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logger
}

// String returns the association name: <remote AET>-<serial> on the
// initiator side and <remote AET>+<serial> on the acceptor side.
func (a *Association) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// ID returns the identifier attached to every log record of the association.
func (a *Association) ID() uuid.UUID {
	return a.id
}

// IsInitiator reports whether the local AE requested the association.
func (a *Association) IsInitiator() bool {
	return a.isInitiator
}

// Device returns the device that owns the association.
func (a *Association) Device() *Device {
	return a.device
}

// ApplicationEntity returns the local AE, or nil while an acceptor has not
// yet received the association request.
func (a *Association) ApplicationEntity() *ApplicationEntity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ae
}

// Config returns the settings the association was created with.
func (a *Association) Config() Config {
	return a.cfg
}

// State returns the current state.
func (a *Association) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the first failure recorded on the association, or nil.
func (a *Association) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done is closed once the transport has been closed and every pending
// operation notified.
func (a *Association) Done() <-chan struct{} {
	return a.done
}

func (a *Association) setError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

func (a *Association) enterState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setStateLocked(s)
}

func (a *Association) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.logger.Debug("state transition", "from", a.state, "to", s)
	a.state = s
	close(a.changed)
	a.changed = make(chan struct{})
}

// transit moves from one state to another and reports whether the
// association was in the expected state.
func (a *Association) transit(from, to State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != from {
		return false
	}
	a.setStateLocked(to)
	return true
}

// WaitForLeaving blocks until the association is no longer in state s and
// returns the recorded failure, if any.
func (a *Association) WaitForLeaving(ctx context.Context, s State) error {
	for {
		a.mu.Lock()
		if a.state != s {
			err := a.err
			a.mu.Unlock()
			return err
		}
		changed := a.changed
		a.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CallingAET returns the calling AE title of the association request.
func (a *Association) CallingAET() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rq == nil {
		return ""
	}
	return a.rq.CallingAETitle
}

// CalledAET returns the called AE title of the association request.
func (a *Association) CalledAET() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rq == nil {
		return ""
	}
	return a.rq.CalledAETitle
}

// RemoteAET returns the AE title of the peer.
func (a *Association) RemoteAET() string {
	if a.isInitiator {
		return a.CalledAET()
	}
	return a.CallingAET()
}

// LocalAET returns the AE title of the local application entity.
func (a *Association) LocalAET() string {
	if a.isInitiator {
		return a.CallingAET()
	}
	return a.CalledAET()
}

// AssociateRQ returns the negotiated request, or nil before it was sent or received.
func (a *Association) AssociateRQ() *pdu.AssociateRQ {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rq
}

// AssociateAC returns the negotiated acceptance, or nil before establishment.
func (a *Association) AssociateAC() *pdu.AssociateAC {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ac
}

// MaxPDULengthSend is the largest PDU the peer accepts, further limited by
// the local configuration. 0 means unlimited.
func (a *Association) MaxPDULengthSend() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxPDULengthSend
}

// SetProperty stores value under key for the lifetime of the association.
func (a *Association) SetProperty(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.properties[key] = value
}

// Property returns the value stored under key, or nil.
func (a *Association) Property(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.properties[key]
}

// ClearProperty removes key and returns its previous value.
func (a *Association) ClearProperty(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.properties[key]
	delete(a.properties, key)
	return v
}

// SetCloseListener registers l to be notified when the transport closes.
func (a *Association) SetCloseListener(l CloseListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = l
}

func (a *Association) pcTable() *pcTable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pcs
}

// PresentationContextFor returns the accepted presentation context with the
// lowest ID for abstractSyntax.
func (a *Association) PresentationContextFor(abstractSyntax string) (*PresentationContext, error) {
	t := a.pcTable()
	if t == nil {
		return nil, fmt.Errorf("%w: no presentation contexts in %s", dicomerrors.ErrInvalidState, a.State())
	}
	return t.resolve(abstractSyntax)
}

// PresentationContextForTransfer returns the accepted presentation context
// for the exact abstract and transfer syntax pair.
func (a *Association) PresentationContextForTransfer(abstractSyntax, transferSyntax string) (*PresentationContext, error) {
	t := a.pcTable()
	if t == nil {
		return nil, fmt.Errorf("%w: no presentation contexts in %s", dicomerrors.ErrInvalidState, a.State())
	}
	return t.resolveTransfer(abstractSyntax, transferSyntax)
}

// PresentationContexts returns every accepted presentation context ordered by ID.
func (a *Association) PresentationContexts() []PresentationContext {
	t := a.pcTable()
	if t == nil {
		return nil
	}
	return t.accepted()
}

// IsSCUFor reports whether the local AE may invoke operations of the SOP class.
func (a *Association) IsSCUFor(sopClassUID string) bool {
	t := a.pcTable()
	return t != nil && t.isSCUFor(sopClassUID)
}

// IsSCPFor reports whether the local AE may perform operations of the SOP class.
func (a *Association) IsSCPFor(sopClassUID string) bool {
	t := a.pcTable()
	return t != nil && t.isSCPFor(sopClassUID)
}

// send writes one PDU. The caller holds writeMu.
func (a *Association) send(p pdu.PDU) error {
	if a.cfg.WriteTimeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	}
	if err := a.encoder.Write(p); err != nil {
		return dicomerrors.NewNetworkError("write", err)
	}
	a.metrics.pdu("out", p)
	a.log().Debug("sent PDU", "type", pdu.Name(p.Type()))
	return nil
}

// Abort sends an A-ABORT if the association is still active and closes the
// transport. It is safe to call more than once.
func (a *Association) Abort() {
	a.abortWith(dicomerrors.NewAbortError(
		byte(dicomerrors.AbortSourceServiceUser), byte(dicomerrors.AbortReasonNotSpecified)))
	a.closeTransport()
}

// abortWith records cause, enters Sta13 and makes a best-effort attempt to
// tell the peer. The transport is left for the caller to close.
func (a *Association) abortWith(cause *dicomerrors.AbortError) {
	a.mu.Lock()
	from := a.state
	if from.terminal() {
		a.mu.Unlock()
		return
	}
	if a.err == nil {
		a.err = cause
	}
	a.setStateLocked(Sta13)
	logger := a.logger
	a.mu.Unlock()

	a.artim.stop()
	logger.Warn("aborting association", "state", from, "error", cause)
	if from == Sta4 {
		return
	}

	if !a.writeMu.TryLock() {
		// unblock a writer stuck on a peer that stopped reading
		_ = a.conn.SetWriteDeadline(time.Now())
		a.writeMu.Lock()
	}
	defer a.writeMu.Unlock()

	timeout := abortWriteTimeout
	if a.cfg.WriteTimeout > 0 && a.cfg.WriteTimeout < timeout {
		timeout = a.cfg.WriteTimeout
	}
	_ = a.conn.SetWriteDeadline(time.Now().Add(timeout))
	abort := pdu.NewAbort(cause)
	if err := a.encoder.Write(abort); err != nil {
		logger.Debug("failed to send A-ABORT", "error", err)
		return
	}
	a.metrics.pdu("out", abort)
}

// closeTransport closes the connection and notifies everyone waiting on the
// association. Only the first call has any effect.
func (a *Association) closeTransport() {
	a.closeOnce.Do(func() {
		a.artim.stop()
		if a.State() == Sta13 && a.cfg.SocketCloseDelay > 0 {
			time.Sleep(a.cfg.SocketCloseDelay)
		}
		if err := a.conn.Close(); err != nil {
			a.log().Debug("error closing connection", "error", err)
		}

		cause := a.Err()
		if cause == nil {
			cause = dicomerrors.ErrConnectionClosed
		}
		for _, op := range a.pending.close(cause) {
			op.handler.HandleClose(cause)
		}
		a.cancel()

		a.mu.Lock()
		listener := a.listener
		a.mu.Unlock()
		if listener != nil {
			listener.OnClose(a)
		}

		a.enterState(Sta1)
		a.log().Info("association closed", "error", a.Err())
		close(a.done)
	})
}

// Release performs an orderly release after the outstanding responses have
// arrived. Unless AllowAcceptorRelease is set only the initiator may release.
func (a *Association) Release(ctx context.Context) error {
	if !a.isInitiator && !a.cfg.AllowAcceptorRelease {
		return dicomerrors.ErrNotInitiator
	}
	if err := a.WaitForOutstandingResponses(ctx); err != nil {
		return err
	}

	a.writeMu.Lock()
	if !a.transit(Sta6, Sta7) {
		a.writeMu.Unlock()
		if err := a.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: release in %s", dicomerrors.ErrInvalidState, a.State())
	}
	a.artim.start(a.cfg.ReleaseTimeout)
	err := a.send(&pdu.ReleaseRQ{})
	a.writeMu.Unlock()
	if err != nil {
		a.setError(err)
		a.closeTransport()
		return err
	}
	a.log().Info("release requested")

	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		a.Abort()
		return ctx.Err()
	}
}

// WaitForOutstandingResponses blocks until every outgoing request has
// received its final response or the association closes.
func (a *Association) WaitForOutstandingResponses(ctx context.Context) error {
	return a.pending.waitIdle(ctx)
}

// outcome classifies a close cause for metrics.
func outcome(cause error) string {
	var (
		rejected *dicomerrors.AssociationError
		aborted  *dicomerrors.AbortError
		timeout  *dicomerrors.TimeoutError
	)
	switch {
	case cause == nil:
		return "released"
	case errors.As(cause, &rejected):
		return "rejected"
	case errors.As(cause, &aborted):
		return "aborted"
	case errors.As(cause, &timeout):
		return "timeout"
	default:
		return "failed"
	}
}
