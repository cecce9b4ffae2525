package association

import (
	"sort"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/pdu"
)

// PresentationContext is one accepted presentation context.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
}

// pcTable maps negotiated abstract syntaxes to accepted presentation
// contexts. It is built once when the association is established and is
// read-only afterwards.
type pcTable struct {
	byID        map[byte]*PresentationContext
	bySyntax    map[string][]*PresentationContext // sorted by context ID
	roles       []pdu.RoleSelection
	isInitiator bool
}

// newPCTable joins every accepted context of ac to the abstract syntax
// proposed under the same ID in rq. Accepted contexts with no matching
// proposal are ignored.
func newPCTable(rq *pdu.AssociateRQ, ac *pdu.AssociateAC, isInitiator bool) *pcTable {
	t := &pcTable{
		byID:        make(map[byte]*PresentationContext),
		bySyntax:    make(map[string][]*PresentationContext),
		roles:       ac.RoleSelections,
		isInitiator: isInitiator,
	}
	for _, acpc := range ac.PresentationContexts {
		if !acpc.IsAccepted() {
			continue
		}
		rqpc := rq.PresentationContext(acpc.ID)
		if rqpc == nil {
			continue
		}
		pc := &PresentationContext{
			ID:             acpc.ID,
			AbstractSyntax: rqpc.AbstractSyntax,
			TransferSyntax: acpc.TransferSyntax,
		}
		t.byID[pc.ID] = pc
		t.bySyntax[pc.AbstractSyntax] = append(t.bySyntax[pc.AbstractSyntax], pc)
	}
	for _, list := range t.bySyntax {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return t
}

// byContextID returns the accepted context with the given ID, or nil.
func (t *pcTable) byContextID(id byte) *PresentationContext {
	return t.byID[id]
}

// resolve returns the accepted context with the least ID for abstractSyntax.
func (t *pcTable) resolve(abstractSyntax string) (*PresentationContext, error) {
	list := t.bySyntax[abstractSyntax]
	if len(list) == 0 {
		return nil, &dicomerrors.NoPresentationContextError{AbstractSyntax: abstractSyntax}
	}
	return list[0], nil
}

// resolveTransfer returns the accepted context for the exact pair. The error
// distinguishes a syntax that was never negotiated from one negotiated only
// with other transfer syntaxes.
func (t *pcTable) resolveTransfer(abstractSyntax, transferSyntax string) (*PresentationContext, error) {
	list := t.bySyntax[abstractSyntax]
	if len(list) == 0 {
		return nil, &dicomerrors.NoPresentationContextError{AbstractSyntax: abstractSyntax}
	}
	for _, pc := range list {
		if pc.TransferSyntax == transferSyntax {
			return pc, nil
		}
	}
	return nil, &dicomerrors.NoPresentationContextError{
		AbstractSyntax: abstractSyntax,
		TransferSyntax: transferSyntax,
	}
}

// accepted returns every accepted context ordered by ID.
func (t *pcTable) accepted() []PresentationContext {
	out := make([]PresentationContext, 0, len(t.byID))
	for _, pc := range t.byID {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *pcTable) roleSelectionFor(uid string) *pdu.RoleSelection {
	for i := range t.roles {
		if t.roles[i].SOPClassUID == uid {
			return &t.roles[i]
		}
	}
	return nil
}

// isSCUFor reports whether the local side may invoke operations of the SOP
// class. Without role selection the initiator is the SCU.
func (t *pcTable) isSCUFor(uid string) bool {
	rs := t.roleSelectionFor(uid)
	if rs == nil {
		return t.isInitiator
	}
	if t.isInitiator {
		return rs.SCU
	}
	return rs.SCP
}

// isSCPFor reports whether the local side may perform operations of the SOP
// class. Without role selection the acceptor is the SCP.
func (t *pcTable) isSCPFor(uid string) bool {
	rs := t.roleSelectionFor(uid)
	if rs == nil {
		return !t.isInitiator
	}
	if t.isInitiator {
		return rs.SCP
	}
	return rs.SCU
}
