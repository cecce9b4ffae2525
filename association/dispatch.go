package association

import (
	"errors"
	"fmt"
	"net"

	"github.com/caio-sobreiro/dicomul/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/types"
)

// activate starts the reader goroutine on the owning device.
func (a *Association) activate() {
	a.device.Execute(a.readLoop)
}

// readLoop receives PDUs until the association reaches a terminal state.
func (a *Association) readLoop() {
	a.device.opened(a)
	defer a.device.closed(a)
	defer a.closeTransport()

	dec := pdu.NewDecoder(a.conn, a.cfg.MaxPDULengthReceive)
	asm := dimse.NewAssembler()
	for !a.State().terminal() {
		p, err := dec.Next()
		if err != nil {
			a.onReadError(err)
			return
		}
		a.metrics.pdu("in", p)
		a.log().Debug("received PDU", "type", pdu.Name(p.Type()))

		if err := a.handle(p, asm); err != nil {
			a.fail(err)
			return
		}
	}
}

func (a *Association) onReadError(err error) {
	state := a.State()
	if state.terminal() {
		return
	}

	var abortErr *dicomerrors.AbortError
	if errors.As(err, &abortErr) {
		a.abortWith(abortErr)
		return
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if d, running := a.artim.expired(); running {
			a.log().Warn("ARTIM timer expired", "state", state, "timeout", d)
			a.setError(dicomerrors.NewTimeoutError("ARTIM in "+state.String(), d.String()))
			return
		}
	}

	a.log().Debug("read failed", "state", state, "error", err)
	a.setError(dicomerrors.NewNetworkError("read", err))
}

// fail handles an error raised while processing a received PDU.
func (a *Association) fail(err error) {
	var abortErr *dicomerrors.AbortError
	if errors.As(err, &abortErr) {
		a.abortWith(abortErr)
		return
	}
	a.setError(err)
}

// handle validates p against the current state and performs its action.
func (a *Association) handle(p pdu.PDU, asm *dimse.Assembler) error {
	state := a.State()
	switch v := p.(type) {
	case *pdu.AssociateRQ:
		if state == Sta2 {
			return a.onAssociateRQ(v)
		}
	case *pdu.AssociateAC:
		if state == Sta5 {
			return a.onAssociateAC(v)
		}
	case *pdu.AssociateRJ:
		if state == Sta5 {
			return a.onAssociateRJ(v)
		}
	case *pdu.PDataTF:
		if state.canReceiveData() {
			return a.onPDataTF(v, asm)
		}
	case *pdu.ReleaseRQ:
		switch state {
		case Sta6:
			return a.onReleaseRQ()
		case Sta7:
			return a.onReleaseCollision()
		}
	case *pdu.ReleaseRP:
		switch state {
		case Sta7, Sta11:
			a.artim.stop()
			a.log().Info("association released")
			a.closeTransport()
			return nil
		case Sta10:
			return a.onReleaseRPCollision()
		}
	case *pdu.Abort:
		if !state.terminal() {
			a.log().Info("received A-ABORT", "source", v.Source, "reason", v.Reason)
			a.setError(v.Err())
			a.closeTransport()
			return nil
		}
	}
	a.log().Warn("unexpected PDU", "type", pdu.Name(p.Type()), "state", state)
	return dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedPDU,
		fmt.Errorf("%s in %s", pdu.Name(p.Type()), state))
}

// rqDecision is the outcome of validating and negotiating an
// A-ASSOCIATE-RQ. Exactly one field is set.
type rqDecision struct {
	accept *pdu.AssociateAC
	reject *dicomerrors.AssociationError
	abort  *dicomerrors.AbortError
}

func (a *Association) decide(rq *pdu.AssociateRQ) rqDecision {
	if rq.ProtocolVersion&0x0001 == 0 {
		return rqDecision{reject: dicomerrors.NewAssociationError(
			dicomerrors.RejectSourceServiceProvider,
			dicomerrors.RejectReasonProtocolVersionNotSupported,
			fmt.Sprintf("protocol version 0x%04X", rq.ProtocolVersion))}
	}
	if rq.ApplicationContext != types.ApplicationContextUID {
		return rqDecision{reject: dicomerrors.NewAssociationError(
			dicomerrors.RejectSourceServiceUser,
			dicomerrors.RejectReasonApplicationContextNotSupported,
			"application context "+rq.ApplicationContext)}
	}
	ae := a.device.ApplicationEntity(rq.CalledAETitle)
	if ae == nil {
		return rqDecision{reject: dicomerrors.NewAssociationError(
			dicomerrors.RejectSourceServiceUser,
			dicomerrors.RejectReasonCalledAETitleNotRecognized,
			"called AE title "+rq.CalledAETitle)}
	}
	a.mu.Lock()
	a.ae = ae
	a.mu.Unlock()

	ac, err := ae.negotiator().Negotiate(a, rq)
	if err != nil {
		var rejErr *dicomerrors.AssociationError
		if errors.As(err, &rejErr) {
			return rqDecision{reject: rejErr}
		}
		return rqDecision{abort: &dicomerrors.AbortError{
			Source: dicomerrors.AbortSourceServiceUser,
			Reason: dicomerrors.AbortReasonNotSpecified,
			Cause:  err,
		}}
	}
	return rqDecision{accept: ac}
}

func (a *Association) onAssociateRQ(rq *pdu.AssociateRQ) error {
	a.artim.stop()
	a.mu.Lock()
	a.rq = rq
	a.renameLocked(fmt.Sprintf("%s+%d", rq.CallingAETitle, a.serial))
	a.setStateLocked(Sta3)
	logger := a.logger
	a.mu.Unlock()
	logger.Info("received association request",
		"calling_ae", rq.CallingAETitle,
		"called_ae", rq.CalledAETitle,
		"presentation_contexts", len(rq.PresentationContexts))

	dec := a.decide(rq)
	switch {
	case dec.abort != nil:
		return dec.abort
	case dec.reject != nil:
		a.writeMu.Lock()
		defer a.writeMu.Unlock()
		if !a.transit(Sta3, Sta13) {
			return nil
		}
		a.setError(dec.reject)
		logger.Info("rejecting association", "error", dec.reject)
		return a.send(pdu.NewAssociateRJ(dec.reject))
	}

	ac := dec.accept
	completeAssociateAC(ac, rq)
	pcs := newPCTable(rq, ac, false)
	a.mu.Lock()
	a.ac = ac
	a.pcs = pcs
	a.maxPDULengthSend = minZeroAsMax(rq.MaxPDULength, a.cfg.MaxPDULengthSend)
	a.mu.Unlock()
	// the requester's performed window bounds what the acceptor invokes
	a.pending.setLimit(ac.MaxOpsPerformed)

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if !a.transit(Sta3, Sta6) {
		return nil
	}
	logger.Info("association accepted", "accepted_contexts", len(pcs.byID))
	return a.send(ac)
}

// completeAssociateAC fills the fields a negotiator may leave empty.
func completeAssociateAC(ac *pdu.AssociateAC, rq *pdu.AssociateRQ) {
	if ac.ProtocolVersion == 0 {
		ac.ProtocolVersion = pdu.ProtocolVersion
	}
	ac.CalledAETitle = rq.CalledAETitle
	ac.CallingAETitle = rq.CallingAETitle
	if ac.ApplicationContext == "" {
		ac.ApplicationContext = rq.ApplicationContext
	}
	if ac.ImplementationClassUID == "" {
		ac.ImplementationClassUID = ImplementationClassUID
		ac.ImplementationVersionName = ImplementationVersionName
	}
}

func (a *Association) onAssociateAC(ac *pdu.AssociateAC) error {
	a.mu.Lock()
	rq := a.rq
	a.ac = ac
	a.pcs = newPCTable(rq, ac, true)
	a.maxPDULengthSend = minZeroAsMax(ac.MaxPDULength, a.cfg.MaxPDULengthSend)
	accepted := len(a.pcs.byID)
	a.mu.Unlock()
	a.pending.setLimit(minZeroAsMax(ac.MaxOpsInvoked, rq.MaxOpsInvoked))
	a.artim.stop()

	if !a.transit(Sta5, Sta6) {
		return nil
	}
	a.log().Info("association established",
		"accepted_contexts", accepted,
		"max_pdu_length", ac.MaxPDULength)
	return nil
}

func (a *Association) onAssociateRJ(rj *pdu.AssociateRJ) error {
	a.artim.stop()
	err := rj.Err()
	a.log().Info("association rejected", "error", err)
	a.setError(err)
	a.closeTransport()
	return nil
}

func (a *Association) onPDataTF(p *pdu.PDataTF, asm *dimse.Assembler) error {
	pcs := a.pcTable()
	for i := range p.PDVs {
		pdv := &p.PDVs[i]
		if pcs.byContextID(pdv.ContextID) == nil {
			return dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidPDUParameterValue,
				fmt.Errorf("PDV for presentation context %d which was not accepted", pdv.ContextID))
		}
		r, err := asm.Feed(pdv)
		if err != nil {
			return dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidPDUParameterValue, err)
		}
		if r == nil {
			continue
		}
		if err := a.onDIMSE(r); err != nil {
			return err
		}
	}
	return nil
}

// onReleaseRQ answers a release request at once.
func (a *Association) onReleaseRQ() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if !a.transit(Sta6, Sta8) {
		return nil
	}
	a.log().Info("release requested by peer")
	a.enterState(Sta13)
	return a.send(&pdu.ReleaseRP{})
}

// onReleaseCollision handles an A-RELEASE-RQ received after our own. The
// requestor answers first; the acceptor waits for the requestor's answer.
func (a *Association) onReleaseCollision() error {
	a.log().Info("release collision")
	if !a.isInitiator {
		a.transit(Sta7, Sta10)
		return nil
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if !a.transit(Sta7, Sta9) {
		return nil
	}
	a.enterState(Sta11)
	return a.send(&pdu.ReleaseRP{})
}

func (a *Association) onReleaseRPCollision() error {
	a.artim.stop()
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if !a.transit(Sta10, Sta12) {
		return nil
	}
	a.enterState(Sta13)
	return a.send(&pdu.ReleaseRP{})
}

// onDIMSE routes a reassembled DIMSE message.
func (a *Association) onDIMSE(r *dimse.Received) error {
	msg := r.Message
	a.log().Debug("received DIMSE",
		"command", types.CommandName(msg.CommandField),
		"presentation_context", r.ContextID)
	switch {
	case msg.IsResponse():
		return a.onResponse(r)
	case msg.IsCancel():
		a.onCancelRQ(msg)
		return nil
	default:
		return a.onRequest(r)
	}
}
