// Package errors provides DICOM-specific error types for better error handling
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrConnectionClosed    = errors.New("dicom: connection closed")
	ErrAssociationRejected = errors.New("dicom: association rejected")
	ErrInvalidPDU          = errors.New("dicom: invalid PDU")
	ErrNoPresentationCtx   = errors.New("dicom: no suitable presentation context")
	ErrInvalidMessage      = errors.New("dicom: invalid DIMSE message")
	ErrOperationCanceled   = errors.New("dicom: operation canceled")
	ErrInvalidState        = errors.New("dicom: operation not permitted in current association state")
	ErrNotInitiator        = errors.New("dicom: association was not initiated locally")
	ErrUnsupportedCommand  = errors.New("dicom: unsupported DIMSE command")
)

// AssociationError represents an A-ASSOCIATE-RJ, sent or received.
type AssociationError struct {
	Result AssociationRejectResult
	Reason AssociationRejectReason
	Source AssociationRejectSource
	Msg    string
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association rejected: %s (result: %s, source: %s, reason: %s)",
		e.Msg, e.Result, e.Source, e.ReasonString())
}

// Is makes errors.Is(err, ErrAssociationRejected) hold for every rejection.
func (e *AssociationError) Is(target error) bool {
	return target == ErrAssociationRejected
}

// ReasonString interprets Reason in the context of Source; the same code
// means different things for the service-user and the two provider sources.
func (e *AssociationError) ReasonString() string {
	switch e.Source {
	case RejectSourceServiceProvider:
		switch e.Reason {
		case 0x01:
			return "no-reason-given"
		case RejectReasonProtocolVersionNotSupported:
			return "protocol-version-not-supported"
		}
	case RejectSourceServiceProviderPresentation:
		switch e.Reason {
		case RejectReasonTemporaryCongestion:
			return "temporary-congestion"
		case RejectReasonLocalLimitExceeded:
			return "local-limit-exceeded"
		}
	default:
		return e.Reason.String()
	}
	return "unknown"
}

// AssociationRejectResult tells the initiator whether retrying may succeed.
type AssociationRejectResult byte

const (
	RejectResultPermanent AssociationRejectResult = 0x01
	RejectResultTransient AssociationRejectResult = 0x02
)

func (r AssociationRejectResult) String() string {
	switch r {
	case RejectResultPermanent:
		return "rejected-permanent"
	case RejectResultTransient:
		return "rejected-transient"
	default:
		return "unknown"
	}
}

// AssociationRejectReason represents why an association was rejected
type AssociationRejectReason byte

const (
	RejectReasonUnknown                        AssociationRejectReason = 0x00
	RejectReasonNoReasonGiven                  AssociationRejectReason = 0x01
	RejectReasonApplicationContextNotSupported AssociationRejectReason = 0x02
	RejectReasonCallingAETitleNotRecognized    AssociationRejectReason = 0x03
	RejectReasonCalledAETitleNotRecognized     AssociationRejectReason = 0x07
)

// Reasons used with the service-provider sources.
const (
	RejectReasonProtocolVersionNotSupported AssociationRejectReason = 0x02
	RejectReasonTemporaryCongestion         AssociationRejectReason = 0x01
	RejectReasonLocalLimitExceeded          AssociationRejectReason = 0x02
)

// String interprets the reason as a service-user reason.
func (r AssociationRejectReason) String() string {
	switch r {
	case RejectReasonNoReasonGiven:
		return "no-reason-given"
	case RejectReasonApplicationContextNotSupported:
		return "application-context-not-supported"
	case RejectReasonCallingAETitleNotRecognized:
		return "calling-ae-title-not-recognized"
	case RejectReasonCalledAETitleNotRecognized:
		return "called-ae-title-not-recognized"
	default:
		return "unknown"
	}
}

// AssociationRejectSource represents who rejected the association
type AssociationRejectSource byte

const (
	RejectSourceUnknown                     AssociationRejectSource = 0x00
	RejectSourceServiceUser                 AssociationRejectSource = 0x01
	RejectSourceServiceProvider             AssociationRejectSource = 0x02
	RejectSourceServiceProviderPresentation AssociationRejectSource = 0x03
)

func (s AssociationRejectSource) String() string {
	switch s {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProvider:
		return "service-provider"
	case RejectSourceServiceProviderPresentation:
		return "service-provider-presentation"
	default:
		return "unknown"
	}
}

// NewAssociationError creates a permanent rejection.
func NewAssociationError(source AssociationRejectSource, reason AssociationRejectReason, msg string) *AssociationError {
	return &AssociationError{
		Result: RejectResultPermanent,
		Source: source,
		Reason: reason,
		Msg:    msg,
	}
}

// DIMSEError reports a DIMSE operation that ended with a failure status.
type DIMSEError struct {
	Status    uint16
	Operation string
	Msg       string
}

func (e *DIMSEError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("DIMSE %s failed (status: 0x%04X)", e.Operation, e.Status)
	}
	return fmt.Sprintf("DIMSE %s failed: %s (status: 0x%04X)", e.Operation, e.Msg, e.Status)
}

// NewDIMSEError creates a new DIMSE error
func NewDIMSEError(operation string, status uint16, msg string) *DIMSEError {
	return &DIMSEError{
		Operation: operation,
		Status:    status,
		Msg:       msg,
	}
}

// IsSuccess returns true if the DIMSE status indicates success
func (e *DIMSEError) IsSuccess() bool {
	return e.Status == 0x0000
}

// IsPending returns true if the DIMSE status indicates pending
func (e *DIMSEError) IsPending() bool {
	return e.Status == 0xFF00 || e.Status == 0xFF01
}

// IsCancel returns true if the operation was terminated by a C-CANCEL.
func (e *DIMSEError) IsCancel() bool {
	return e.Status == 0xFE00
}

// IsWarning returns true if the DIMSE status indicates a warning
func (e *DIMSEError) IsWarning() bool {
	switch e.Status {
	case 0x0001, 0x0107, 0x0116:
		return true
	}
	return e.Status&0xF000 == 0xB000
}

// IsFailure returns true for every other status, including the 01xx and
// 02xx failure codes.
func (e *DIMSEError) IsFailure() bool {
	return !e.IsSuccess() && !e.IsPending() && !e.IsCancel() && !e.IsWarning()
}

// StatusError returns a *DIMSEError when a final status is a failure and
// nil otherwise.
func StatusError(operation string, status uint16) error {
	err := NewDIMSEError(operation, status, "")
	if !err.IsFailure() {
		return nil
	}
	return err
}

// TimeoutError represents a timeout error
type TimeoutError struct {
	Operation string
	Duration  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation, duration string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
	}
}

// NetworkError represents a network-level error
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{
		Op:  op,
		Err: err,
	}
}

// PDUError represents a PDU-level protocol error
type PDUError struct {
	PDUType byte
	Msg     string
}

func (e *PDUError) Error() string {
	return fmt.Sprintf("PDU error (type: 0x%02X): %s", e.PDUType, e.Msg)
}

// Is makes every PDUError match ErrInvalidPDU.
func (e *PDUError) Is(target error) bool {
	return target == ErrInvalidPDU
}

// NewPDUError creates a new PDU error
func NewPDUError(pduType byte, msg string) *PDUError {
	return &PDUError{
		PDUType: pduType,
		Msg:     msg,
	}
}

// AbortSource identifies who initiated an A-ABORT.
type AbortSource byte

const (
	AbortSourceServiceUser     AbortSource = 0x00
	AbortSourceServiceProvider AbortSource = 0x02
)

func (s AbortSource) String() string {
	switch s {
	case AbortSourceServiceUser:
		return "service-user"
	case AbortSourceServiceProvider:
		return "service-provider"
	default:
		return "unknown"
	}
}

// AbortReason is only meaningful when the source is the service provider.
type AbortReason byte

const (
	AbortReasonNotSpecified             AbortReason = 0x00
	AbortReasonUnrecognizedPDU          AbortReason = 0x01
	AbortReasonUnexpectedPDU            AbortReason = 0x02
	AbortReasonUnrecognizedPDUParameter AbortReason = 0x04
	AbortReasonUnexpectedPDUParameter   AbortReason = 0x05
	AbortReasonInvalidPDUParameterValue AbortReason = 0x06
)

func (r AbortReason) String() string {
	switch r {
	case AbortReasonNotSpecified:
		return "reason-not-specified"
	case AbortReasonUnrecognizedPDU:
		return "unrecognized-pdu"
	case AbortReasonUnexpectedPDU:
		return "unexpected-pdu"
	case AbortReasonUnrecognizedPDUParameter:
		return "unrecognized-pdu-parameter"
	case AbortReasonUnexpectedPDUParameter:
		return "unexpected-pdu-parameter"
	case AbortReasonInvalidPDUParameterValue:
		return "invalid-pdu-parameter-value"
	default:
		return "unknown"
	}
}

// AbortError represents an A-ABORT PDU, sent or received. Cause, when set,
// is the local condition that made us abort (a malformed PDU, for example).
type AbortError struct {
	Source AbortSource
	Reason AbortReason
	Cause  error
}

func (e *AbortError) Error() string {
	msg := fmt.Sprintf("association aborted by %s (reason: %s)", e.Source, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// NewAbortError creates a new abort error
func NewAbortError(source, reason byte) *AbortError {
	return &AbortError{
		Source: AbortSource(source),
		Reason: AbortReason(reason),
	}
}

// NewProtocolError builds the provider-initiated abort raised for malformed
// or out-of-sequence input.
func NewProtocolError(reason AbortReason, cause error) *AbortError {
	return &AbortError{
		Source: AbortSourceServiceProvider,
		Reason: reason,
		Cause:  cause,
	}
}

// NoPresentationContextError is returned when no accepted presentation
// context matches a request. An empty TransferSyntax means the abstract
// syntax was not negotiated at all.
type NoPresentationContextError struct {
	AbstractSyntax string
	TransferSyntax string
}

func (e *NoPresentationContextError) Error() string {
	if e.TransferSyntax == "" {
		return fmt.Sprintf("no presentation context for abstract syntax %s", e.AbstractSyntax)
	}
	return fmt.Sprintf("no presentation context for abstract syntax %s with transfer syntax %s",
		e.AbstractSyntax, e.TransferSyntax)
}

// Is makes errors.Is(err, ErrNoPresentationCtx) hold.
func (e *NoPresentationContextError) Is(target error) bool {
	return target == ErrNoPresentationCtx
}

// NoRoleSelectionError is returned when the negotiated roles do not allow
// the local AE to act as Role for SOPClassUID.
type NoRoleSelectionError struct {
	SOPClassUID string
	Role        string
}

func (e *NoRoleSelectionError) Error() string {
	return fmt.Sprintf("no %s role negotiated for %s", e.Role, e.SOPClassUID)
}
