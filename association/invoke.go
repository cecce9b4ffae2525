package association

import (
	"context"
	"fmt"
	"time"

	"github.com/caio-sobreiro/dicomul/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/types"
)

// checkSendable returns the recorded failure or ErrInvalidState unless
// P-DATA-TF may currently be written.
func (a *Association) checkSendable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if !a.state.canSendData() {
		return fmt.Errorf("%w: cannot send data in %s", dicomerrors.ErrInvalidState, a.state)
	}
	return nil
}

// Invoke sends a DIMSE request on pc and registers handler for its
// responses. It blocks while the negotiated operations window is full.
// The message ID assigned to the request is stored in msg and returned.
func (a *Association) Invoke(ctx context.Context, pc *PresentationContext, msg *types.Message, data []byte, handler ResponseHandler) (uint16, error) {
	if pc == nil {
		return 0, fmt.Errorf("%w: nil presentation context", dicomerrors.ErrNoPresentationCtx)
	}
	if err := a.checkSendable(); err != nil {
		return 0, err
	}
	if a.pcTable().byContextID(pc.ID) == nil {
		return 0, &dicomerrors.NoPresentationContextError{AbstractSyntax: pc.AbstractSyntax}
	}

	op := &pendingOp{contextID: pc.ID, command: msg.CommandField, handler: handler}
	if err := a.pending.register(ctx, op); err != nil {
		return 0, err
	}
	msg.MessageID = op.msgID
	a.pending.arm(op, a.cfg.DimseRSPTimeout)

	if err := a.writeDIMSE(pc.ID, msg, data); err != nil {
		a.pending.removeOp(op)
		return 0, err
	}
	return op.msgID, nil
}

// writeDIMSE writes every fragment of one DIMSE message under a single
// hold of the write lock.
func (a *Association) writeDIMSE(contextID byte, msg *types.Message, data []byte) error {
	pdus, err := dimse.Encode(contextID, msg, data, a.MaxPDULengthSend())
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	for _, p := range pdus {
		if err := a.checkSendable(); err != nil {
			a.writeMu.Unlock()
			return err
		}
		if err := a.send(p); err != nil {
			a.writeMu.Unlock()
			a.setError(err)
			a.closeTransport()
			return err
		}
	}
	a.writeMu.Unlock()

	a.log().Debug("sent DIMSE",
		"command", types.CommandName(msg.CommandField),
		"message_id", msg.MessageID,
		"presentation_context", contextID,
		"status", fmt.Sprintf("0x%04X", msg.Status))
	return nil
}

// onResponse delivers a response to the handler registered for the request.
func (a *Association) onResponse(r *dimse.Received) error {
	msg := r.Message
	op := a.pending.lookup(msg.MessageIDBeingRespondedTo)
	if op == nil {
		return &dicomerrors.AbortError{
			Source: dicomerrors.AbortSourceServiceUser,
			Reason: dicomerrors.AbortReasonNotSpecified,
			Cause:  fmt.Errorf("%w: %s for message ID %d with no outstanding request",
				dicomerrors.ErrInvalidMessage, types.CommandName(msg.CommandField), msg.MessageIDBeingRespondedTo),
		}
	}

	if types.IsPendingStatus(msg.Status) {
		a.pending.arm(op, a.cfg.responseTimeout(msg.CommandField))
		if !op.handler.HandleResponse(msg, r.Data) {
			a.pending.removeOp(op)
		}
		return nil
	}

	if a.pending.removeOp(op) {
		op.handler.HandleResponse(msg, r.Data)
	}
	return nil
}

func (a *Association) onResponseTimeout(op *pendingOp, d time.Duration) {
	a.metrics.responseTimeout()
	a.log().Warn("response timeout",
		"command", types.CommandName(op.command),
		"message_id", op.msgID,
		"timeout", d)
	op.handler.HandleClose(dicomerrors.NewTimeoutError(
		fmt.Sprintf("response to %s message ID %d", types.CommandName(op.command), op.msgID), d.String()))
}

// Echo sends a C-ECHO-RQ for the Verification SOP class.
func (a *Association) Echo(ctx context.Context) (*FutureResponse, error) {
	return a.EchoSOPClass(ctx, types.VerificationSOPClass)
}

// EchoSOPClass sends a C-ECHO-RQ for sopClassUID.
func (a *Association) EchoSOPClass(ctx context.Context, sopClassUID string) (*FutureResponse, error) {
	pc, err := a.requestContext(sopClassUID)
	if err != nil {
		return nil, err
	}
	msg := &types.Message{
		CommandField:        types.CEchoRQ,
		AffectedSOPClassUID: sopClassUID,
		CommandDataSetType:  types.NoDataSet,
	}
	f := NewFutureResponse()
	if _, err := a.Invoke(ctx, pc, msg, nil, f); err != nil {
		return nil, err
	}
	return f, nil
}

// CStore sends a C-STORE-RQ for the instance and waits for its response.
func (a *Association) CStore(ctx context.Context, sopClassUID, sopInstanceUID string, data []byte) (uint16, error) {
	pc, err := a.requestContext(sopClassUID)
	if err != nil {
		return 0, err
	}
	msg := &types.Message{
		CommandField:           types.CStoreRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		Priority:               dimse.PriorityMedium,
		CommandDataSetType:     types.DataSetPresent,
	}
	f := NewFutureResponse()
	if _, err := a.Invoke(ctx, pc, msg, data, f); err != nil {
		return 0, err
	}
	rsp, err := f.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return rsp.Message.Status, nil
}

// requestContext resolves the context for invoking operations of sopClassUID.
func (a *Association) requestContext(sopClassUID string) (*PresentationContext, error) {
	pc, err := a.PresentationContextFor(sopClassUID)
	if err != nil {
		return nil, err
	}
	if !a.IsSCUFor(sopClassUID) {
		return nil, &dicomerrors.NoRoleSelectionError{SOPClassUID: sopClassUID, Role: "SCU"}
	}
	return pc, nil
}

// Cancel sends a C-CANCEL-RQ for the outstanding request msgID. The
// response handler stays registered and receives the final response.
func (a *Association) Cancel(pc *PresentationContext, msgID uint16) error {
	if a.pending.lookup(msgID) == nil {
		return fmt.Errorf("%w: no outstanding request with message ID %d", dicomerrors.ErrInvalidState, msgID)
	}
	if err := a.checkSendable(); err != nil {
		return err
	}
	msg := &types.Message{
		CommandField:              types.CCancelRQ,
		MessageIDBeingRespondedTo: msgID,
		CommandDataSetType:        types.NoDataSet,
	}
	return a.writeDIMSE(pc.ID, msg, nil)
}

// OutstandingRequests returns the number of requests awaiting a final response.
func (a *Association) OutstandingRequests() int {
	return a.pending.count()
}
