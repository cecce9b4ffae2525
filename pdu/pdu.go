// Package pdu models the DICOM Upper Layer protocol data units (PS3.8
// section 9.3) and converts them to and from their wire form.
package pdu

import (
	"fmt"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
)

// PDU types
const (
	TypeAssociateRQ byte = 0x01
	TypeAssociateAC byte = 0x02
	TypeAssociateRJ byte = 0x03
	TypePDataTF     byte = 0x04
	TypeReleaseRQ   byte = 0x05
	TypeReleaseRP   byte = 0x06
	TypeAbort       byte = 0x07
)

// Variable item types of A-ASSOCIATE-RQ/AC
const (
	itemApplicationContext     byte = 0x10
	itemPresentationContextRQ  byte = 0x20
	itemPresentationContextAC  byte = 0x21
	itemAbstractSyntax         byte = 0x30
	itemTransferSyntax         byte = 0x40
	itemUserInformation        byte = 0x50
	itemMaxLength              byte = 0x51
	itemImplementationClassUID byte = 0x52
	itemAsyncOpsWindow         byte = 0x53
	itemRoleSelection          byte = 0x54
	itemImplementationVersion  byte = 0x55
)

// ProtocolVersion is the only version defined by PS3.8; acceptors check bit 0.
const ProtocolVersion uint16 = 0x0001

// Presentation context results carried in A-ASSOCIATE-AC
const (
	ResultAcceptance                   byte = 0x00
	ResultUserRejection                byte = 0x01
	ResultNoReason                     byte = 0x02
	ResultAbstractSyntaxNotSupported   byte = 0x03
	ResultTransferSyntaxesNotSupported byte = 0x04
)

// PDU is implemented by every protocol data unit.
type PDU interface {
	Type() byte
}

// Name returns the PS3.8 name of a PDU type, e.g. "A-ASSOCIATE-RQ".
func Name(pduType byte) string {
	switch pduType {
	case TypeAssociateRQ:
		return "A-ASSOCIATE-RQ"
	case TypeAssociateAC:
		return "A-ASSOCIATE-AC"
	case TypeAssociateRJ:
		return "A-ASSOCIATE-RJ"
	case TypePDataTF:
		return "P-DATA-TF"
	case TypeReleaseRQ:
		return "A-RELEASE-RQ"
	case TypeReleaseRP:
		return "A-RELEASE-RP"
	case TypeAbort:
		return "A-ABORT"
	default:
		return fmt.Sprintf("PDU(0x%02x)", pduType)
	}
}

// UserInformation holds the user information sub-items shared by
// A-ASSOCIATE-RQ and A-ASSOCIATE-AC.
//
// MaxOpsInvoked and MaxOpsPerformed follow the asynchronous operations
// window semantics: 0 means unlimited, and an absent item means 1.
type UserInformation struct {
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	MaxOpsInvoked             uint16
	MaxOpsPerformed           uint16
	RoleSelections            []RoleSelection
}

// RoleSelectionFor returns the role selection item for uid, or nil.
func (u *UserInformation) RoleSelectionFor(uid string) *RoleSelection {
	for i := range u.RoleSelections {
		if u.RoleSelections[i].SOPClassUID == uid {
			return &u.RoleSelections[i]
		}
	}
	return nil
}

// RoleSelection is an SCP/SCU Role Selection sub-item.
type RoleSelection struct {
	SOPClassUID string
	SCU         bool
	SCP         bool
}

// PresentationContextRQ is a proposed presentation context.
type PresentationContextRQ struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// PresentationContextAC is the acceptor's answer to one proposed context.
type PresentationContextAC struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

// IsAccepted reports whether the context was accepted.
func (pc *PresentationContextAC) IsAccepted() bool {
	return pc.Result == ResultAcceptance
}

// AssociateRQ is an A-ASSOCIATE-RQ PDU.
type AssociateRQ struct {
	ProtocolVersion      uint16
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContextRQ
	UserInformation
}

func (*AssociateRQ) Type() byte { return TypeAssociateRQ }

// PresentationContext returns the proposed context with the given ID, or nil.
func (rq *AssociateRQ) PresentationContext(id byte) *PresentationContextRQ {
	for i := range rq.PresentationContexts {
		if rq.PresentationContexts[i].ID == id {
			return &rq.PresentationContexts[i]
		}
	}
	return nil
}

// AddPresentationContext appends a proposal using the next free odd
// context ID and returns that ID.
func (rq *AssociateRQ) AddPresentationContext(abstractSyntax string, transferSyntaxes ...string) byte {
	id := byte(1)
	for _, pc := range rq.PresentationContexts {
		if pc.ID >= id {
			id = pc.ID + 2
		}
	}
	rq.PresentationContexts = append(rq.PresentationContexts, PresentationContextRQ{
		ID:               id,
		AbstractSyntax:   abstractSyntax,
		TransferSyntaxes: transferSyntaxes,
	})
	return id
}

// AssociateAC is an A-ASSOCIATE-AC PDU.
type AssociateAC struct {
	ProtocolVersion      uint16
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContextAC
	UserInformation
}

func (*AssociateAC) Type() byte { return TypeAssociateAC }

// PresentationContext returns the answer for the given context ID, or nil.
func (ac *AssociateAC) PresentationContext(id byte) *PresentationContextAC {
	for i := range ac.PresentationContexts {
		if ac.PresentationContexts[i].ID == id {
			return &ac.PresentationContexts[i]
		}
	}
	return nil
}

// AssociateRJ is an A-ASSOCIATE-RJ PDU.
type AssociateRJ struct {
	Result dicomerrors.AssociationRejectResult
	Source dicomerrors.AssociationRejectSource
	Reason dicomerrors.AssociationRejectReason
}

func (*AssociateRJ) Type() byte { return TypeAssociateRJ }

// NewAssociateRJ builds the PDU that carries err to the peer.
func NewAssociateRJ(err *dicomerrors.AssociationError) *AssociateRJ {
	return &AssociateRJ{Result: err.Result, Source: err.Source, Reason: err.Reason}
}

// Err converts a received rejection into an error value.
func (rj *AssociateRJ) Err() *dicomerrors.AssociationError {
	return &dicomerrors.AssociationError{
		Result: rj.Result,
		Source: rj.Source,
		Reason: rj.Reason,
		Msg:    "rejected by peer",
	}
}

// PDV is one presentation data value item of a P-DATA-TF.
type PDV struct {
	ContextID byte
	Command   bool
	Last      bool
	Data      []byte
}

// ControlHeader returns the message control header byte.
func (v *PDV) ControlHeader() byte {
	var h byte
	if v.Command {
		h |= 0x01
	}
	if v.Last {
		h |= 0x02
	}
	return h
}

// PDataTF is a P-DATA-TF PDU.
type PDataTF struct {
	PDVs []PDV
}

func (*PDataTF) Type() byte { return TypePDataTF }

// ReleaseRQ is an A-RELEASE-RQ PDU.
type ReleaseRQ struct{}

func (*ReleaseRQ) Type() byte { return TypeReleaseRQ }

// ReleaseRP is an A-RELEASE-RP PDU.
type ReleaseRP struct{}

func (*ReleaseRP) Type() byte { return TypeReleaseRP }

// Abort is an A-ABORT PDU.
type Abort struct {
	Source dicomerrors.AbortSource
	Reason dicomerrors.AbortReason
}

func (*Abort) Type() byte { return TypeAbort }

// NewAbort builds the PDU that carries err to the peer.
func NewAbort(err *dicomerrors.AbortError) *Abort {
	return &Abort{Source: err.Source, Reason: err.Reason}
}

// Err converts a received abort into an error value.
func (a *Abort) Err() *dicomerrors.AbortError {
	return &dicomerrors.AbortError{Source: a.Source, Reason: a.Reason}
}
