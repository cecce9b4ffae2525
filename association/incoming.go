package association

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caio-sobreiro/dicomul/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/interfaces"
	"github.com/caio-sobreiro/dicomul/types"
)

type (
	contextKey   struct{}
	pcContextKey struct{}
)

// NewContext returns a copy of ctx carrying a.
func NewContext(ctx context.Context, a *Association) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the association a request handler runs on.
func FromContext(ctx context.Context) (*Association, bool) {
	a, ok := ctx.Value(contextKey{}).(*Association)
	return a, ok
}

// RequestPresentationContext returns the presentation context an incoming
// request arrived on.
func RequestPresentationContext(ctx context.Context) (*PresentationContext, bool) {
	pc, ok := ctx.Value(pcContextKey{}).(*PresentationContext)
	return pc, ok && pc != nil
}

// onRequest runs the AE's service handler for an incoming request on its
// own goroutine so the reader keeps receiving responses and cancels.
func (a *Association) onRequest(r *dimse.Received) error {
	msg := r.Message
	pc := a.pcTable().byContextID(r.ContextID)

	ctx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	if _, dup := a.incoming[msg.MessageID]; dup {
		a.mu.Unlock()
		cancel()
		return &dicomerrors.AbortError{
			Source: dicomerrors.AbortSourceServiceUser,
			Reason: dicomerrors.AbortReasonNotSpecified,
			Cause:  fmt.Errorf("%w: duplicate message ID %d", dicomerrors.ErrInvalidMessage, msg.MessageID),
		}
	}
	a.incoming[msg.MessageID] = cancel
	a.mu.Unlock()

	ctx = context.WithValue(NewContext(ctx, a), pcContextKey{}, pc)
	a.device.Execute(func() {
		defer a.finishRequest(msg.MessageID, cancel)
		a.perform(ctx, pc, msg, r.Data)
	})
	return nil
}

func (a *Association) finishRequest(msgID uint16, cancel context.CancelFunc) {
	a.mu.Lock()
	delete(a.incoming, msgID)
	a.mu.Unlock()
	cancel()
}

func (a *Association) onCancelRQ(msg *types.Message) {
	a.mu.Lock()
	cancel, ok := a.incoming[msg.MessageIDBeingRespondedTo]
	a.mu.Unlock()
	if !ok {
		a.log().Debug("C-CANCEL-RQ for unknown request", "message_id", msg.MessageIDBeingRespondedTo)
		return
	}
	a.log().Info("request canceled by peer", "message_id", msg.MessageIDBeingRespondedTo)
	cancel()
}

func (a *Association) perform(ctx context.Context, pc *PresentationContext, msg *types.Message, data []byte) {
	rsp := &responder{a: a, pc: pc, request: msg}
	logger := a.log().With("command", types.CommandName(msg.CommandField), "message_id", msg.MessageID)

	var handler interfaces.ServiceHandler
	if ae := a.ApplicationEntity(); ae != nil {
		handler = ae.Handler
	}

	var err error
	switch h := handler.(type) {
	case nil:
		err = dicomerrors.ErrUnsupportedCommand
	case interfaces.StreamingServiceHandler:
		err = h.HandleDIMSEStreaming(ctx, msg, data, rsp)
	default:
		var out *types.Message
		var outData []byte
		out, outData, err = h.HandleDIMSE(ctx, msg, data)
		if err == nil {
			err = rsp.SendResponse(out, outData)
		}
	}
	if err == nil || rsp.sentFinal() {
		return
	}

	status := uint16(types.StatusProcessingFailure)
	if errors.Is(err, dicomerrors.ErrUnsupportedCommand) {
		status = types.StatusUnrecognizedOperation
	}
	logger.Warn("request failed", "error", err, "status", fmt.Sprintf("0x%04X", status))
	if sendErr := rsp.SendResponse(&types.Message{Status: status}, nil); sendErr != nil {
		logger.Debug("failed to send failure response", "error", sendErr)
	}
}

// responder sends the responses of one incoming request. It also lets a
// C-GET handler issue C-STORE sub-operations on the same association.
type responder struct {
	a       *Association
	pc      *PresentationContext
	request *types.Message

	mu    sync.Mutex
	final bool
}

var _ interfaces.CGetResponder = (*responder)(nil)

func (r *responder) sentFinal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

func (r *responder) SendResponse(msg *types.Message, data []byte) error {
	if msg == nil {
		return fmt.Errorf("%w: nil response", dicomerrors.ErrInvalidMessage)
	}
	r.mu.Lock()
	if r.final {
		r.mu.Unlock()
		return fmt.Errorf("%w: final response to message ID %d already sent",
			dicomerrors.ErrInvalidState, r.request.MessageID)
	}
	if !types.IsPendingStatus(msg.Status) {
		r.final = true
	}
	r.mu.Unlock()

	if msg.CommandField == 0 {
		msg.CommandField = types.ResponseCommandFor(r.request.CommandField)
	}
	msg.MessageIDBeingRespondedTo = r.request.MessageID
	if msg.AffectedSOPClassUID == "" {
		msg.AffectedSOPClassUID = r.request.AffectedSOPClassUID
	}
	if msg.AffectedSOPInstanceUID == "" && r.request.CommandField == types.CStoreRQ {
		msg.AffectedSOPInstanceUID = r.request.AffectedSOPInstanceUID
	}
	if data == nil {
		msg.CommandDataSetType = types.NoDataSet
	}
	return r.a.writeDIMSE(r.pc.ID, msg, data)
}

func (r *responder) SendCStore(ctx context.Context, sopClassUID, sopInstanceUID string, data []byte) (uint16, error) {
	return r.a.CStore(ctx, sopClassUID, sopInstanceUID, data)
}
