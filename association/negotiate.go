package association

import (
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/types"
)

// Negotiator decides how an application entity answers an association
// request. Returning an *errors.AssociationError rejects the association;
// any other error aborts it.
type Negotiator interface {
	Negotiate(a *Association, rq *pdu.AssociateRQ) (*pdu.AssociateAC, error)
}

// NegotiatorFunc adapts a function to Negotiator.
type NegotiatorFunc func(a *Association, rq *pdu.AssociateRQ) (*pdu.AssociateAC, error)

func (f NegotiatorFunc) Negotiate(a *Association, rq *pdu.AssociateRQ) (*pdu.AssociateAC, error) {
	return f(a, rq)
}

// DefaultNegotiator accepts verification, query/retrieve and storage
// contexts offered with an uncompressed little endian transfer syntax.
type DefaultNegotiator struct {
	// AbstractSyntaxes, when set, replaces the built-in set of accepted
	// abstract syntaxes.
	AbstractSyntaxes []string
	// TransferSyntaxes, when set, replaces the built-in accepted transfer syntaxes.
	TransferSyntaxes []string
}

var defaultAbstractSyntaxes = map[string]bool{
	types.VerificationSOPClass:                              true,
	types.PatientRootQueryRetrieveInformationModelFind:      true,
	types.StudyRootQueryRetrieveInformationModelFind:        true,
	types.PatientStudyOnlyQueryRetrieveInformationModelFind: true,
	types.PatientRootQueryRetrieveInformationModelMove:      true,
	types.StudyRootQueryRetrieveInformationModelMove:        true,
	types.PatientStudyOnlyQueryRetrieveInformationModelMove: true,
	types.PatientRootQueryRetrieveInformationModelGet:       true,
	types.StudyRootQueryRetrieveInformationModelGet:         true,
	types.PatientStudyOnlyQueryRetrieveInformationModelGet:  true,
}

var defaultTransferSyntaxes = map[string]bool{
	types.ImplicitVRLittleEndian: true,
	types.ExplicitVRLittleEndian: true,
}

func (n DefaultNegotiator) supportsAbstractSyntax(uid string) bool {
	if len(n.AbstractSyntaxes) > 0 {
		for _, as := range n.AbstractSyntaxes {
			if as == uid {
				return true
			}
		}
		return false
	}
	return defaultAbstractSyntaxes[uid] || types.IsStorageSOPClass(uid)
}

func (n DefaultNegotiator) supportsTransferSyntax(uid string) bool {
	if len(n.TransferSyntaxes) > 0 {
		for _, ts := range n.TransferSyntaxes {
			if ts == uid {
				return true
			}
		}
		return false
	}
	return defaultTransferSyntaxes[uid]
}

// Negotiate answers every proposed context, picking the first supported
// transfer syntax in the order proposed. Role selections are accepted as
// proposed for SOP classes that were accepted.
func (n DefaultNegotiator) Negotiate(a *Association, rq *pdu.AssociateRQ) (*pdu.AssociateAC, error) {
	cfg := a.Config()
	ac := &pdu.AssociateAC{
		ProtocolVersion:    pdu.ProtocolVersion,
		CalledAETitle:      rq.CalledAETitle,
		CallingAETitle:     rq.CallingAETitle,
		ApplicationContext: rq.ApplicationContext,
		UserInformation: pdu.UserInformation{
			MaxPDULength:              cfg.MaxPDULengthReceive,
			ImplementationClassUID:    ImplementationClassUID,
			ImplementationVersionName: ImplementationVersionName,
			MaxOpsInvoked:             minZeroAsMax(rq.MaxOpsInvoked, cfg.MaxOpsPerformed),
			MaxOpsPerformed:           minZeroAsMax(rq.MaxOpsPerformed, cfg.MaxOpsInvoked),
		},
	}

	accepted := make(map[string]bool)
	for _, pc := range rq.PresentationContexts {
		result := pdu.PresentationContextAC{ID: pc.ID, Result: pdu.ResultAbstractSyntaxNotSupported}
		if n.supportsAbstractSyntax(pc.AbstractSyntax) {
			result.Result = pdu.ResultTransferSyntaxesNotSupported
			for _, ts := range pc.TransferSyntaxes {
				if n.supportsTransferSyntax(ts) {
					result.Result = pdu.ResultAcceptance
					result.TransferSyntax = ts
					accepted[pc.AbstractSyntax] = true
					break
				}
			}
		}
		ac.PresentationContexts = append(ac.PresentationContexts, result)
	}

	for _, rs := range rq.RoleSelections {
		if accepted[rs.SOPClassUID] {
			ac.RoleSelections = append(ac.RoleSelections, rs)
		}
	}
	return ac, nil
}
