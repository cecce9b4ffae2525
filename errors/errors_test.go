package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociationError(t *testing.T) {
	err := NewAssociationError(
		RejectSourceServiceUser,
		RejectReasonCalledAETitleNotRecognized,
		"AE title mismatch",
	)

	assert.Equal(t, RejectResultPermanent, err.Result)
	assert.Equal(t, RejectSourceServiceUser, err.Source)
	assert.Equal(t, RejectReasonCalledAETitleNotRecognized, err.Reason)
	assert.Contains(t, err.Error(), "called-ae-title-not-recognized")
	assert.True(t, errors.Is(err, ErrAssociationRejected))

	wrapped := fmt.Errorf("connect: %w", err)
	var target *AssociationError
	require.True(t, errors.As(wrapped, &target))
	assert.Same(t, err, target)
}

func TestAssociationError_ReasonDependsOnSource(t *testing.T) {
	tests := []struct {
		source   AssociationRejectSource
		reason   AssociationRejectReason
		expected string
	}{
		{RejectSourceServiceUser, RejectReasonApplicationContextNotSupported, "application-context-not-supported"},
		{RejectSourceServiceProvider, RejectReasonProtocolVersionNotSupported, "protocol-version-not-supported"},
		{RejectSourceServiceProvider, RejectReasonNoReasonGiven, "no-reason-given"},
		{RejectSourceServiceProviderPresentation, RejectReasonTemporaryCongestion, "temporary-congestion"},
		{RejectSourceServiceProviderPresentation, RejectReasonLocalLimitExceeded, "local-limit-exceeded"},
		{RejectSourceServiceProviderPresentation, 0x07, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			err := NewAssociationError(tt.source, tt.reason, "test")
			assert.Equal(t, tt.expected, err.ReasonString())
		})
	}
}

func TestDIMSEError(t *testing.T) {
	tests := []struct {
		name      string
		status    uint16
		isSuccess bool
		isPending bool
		isWarning bool
		isFailure bool
	}{
		{"Success", 0x0000, true, false, false, false},
		{"Pending", 0xFF00, false, true, false, false},
		{"PendingWarning", 0xFF01, false, true, false, false},
		{"Cancel", 0xFE00, false, false, false, false},
		{"Warning", 0x0107, false, false, true, false},
		{"AttributeListWarning", 0x0001, false, false, true, false},
		{"CoercionWarning", 0xB000, false, false, true, false},
		{"Failure", 0xC000, false, false, false, true},
		{"OutOfResources", 0xA700, false, false, false, true},
		{"ProcessingFailure", 0x0110, false, false, false, true},
		{"SOPClassNotSupported", 0x0122, false, false, false, true},
		{"UnrecognizedOperation", 0x0211, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDIMSEError("C-STORE", tt.status, "test error")

			assert.Equal(t, tt.isSuccess, err.IsSuccess())
			assert.Equal(t, tt.isPending, err.IsPending())
			assert.Equal(t, tt.isWarning, err.IsWarning())
			assert.Equal(t, tt.isFailure, err.IsFailure())
		})
	}
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, StatusError("C-STORE", 0x0000))
	assert.NoError(t, StatusError("C-STORE", 0xB000))
	assert.NoError(t, StatusError("C-FIND", 0xFE00))

	err := StatusError("C-STORE", 0xA700)
	var dimseErr *DIMSEError
	require.ErrorAs(t, err, &dimseErr)
	assert.Equal(t, uint16(0xA700), dimseErr.Status)
	assert.Equal(t, "DIMSE C-STORE failed (status: 0xA700)", err.Error())
	assert.Equal(t, "DIMSE C-ECHO failed: refused (status: 0x0122)", NewDIMSEError("C-ECHO", 0x0122, "refused").Error())
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("A-ASSOCIATE-AC", "30s")

	assert.Equal(t, "A-ASSOCIATE-AC", err.Operation)
	assert.True(t, err.Timeout())
	assert.Equal(t, "timeout: A-ASSOCIATE-AC exceeded 30s", err.Error())
}

func TestNetworkError(t *testing.T) {
	innerErr := errors.New("connection refused")
	err := NewNetworkError("dial", innerErr)

	assert.Equal(t, "dial", err.Op)
	assert.True(t, errors.Is(err, innerErr))
}

func TestPDUError(t *testing.T) {
	err := NewPDUError(0x04, "invalid PDU length")

	assert.Equal(t, byte(0x04), err.PDUType)
	assert.True(t, errors.Is(err, ErrInvalidPDU))
	assert.NotEmpty(t, err.Error())
}

func TestAbortError(t *testing.T) {
	err := NewAbortError(0x02, 0x01)

	assert.Equal(t, AbortSourceServiceProvider, err.Source)
	assert.Equal(t, AbortReasonUnrecognizedPDU, err.Reason)
	assert.Equal(t, "association aborted by service-provider (reason: unrecognized-pdu)", err.Error())
}

func TestProtocolError_UnwrapsCause(t *testing.T) {
	cause := NewPDUError(0x01, "truncated")
	err := NewProtocolError(AbortReasonInvalidPDUParameterValue, cause)

	assert.Equal(t, AbortSourceServiceProvider, err.Source)
	assert.True(t, errors.Is(err, ErrInvalidPDU))
	assert.Contains(t, err.Error(), "truncated")
}

func TestNoPresentationContextError(t *testing.T) {
	notNegotiated := &NoPresentationContextError{AbstractSyntax: "1.2.3"}
	wrongEncoding := &NoPresentationContextError{AbstractSyntax: "1.2.3", TransferSyntax: "1.2.840.10008.1.2"}

	assert.Equal(t, "no presentation context for abstract syntax 1.2.3", notNegotiated.Error())
	assert.Contains(t, wrongEncoding.Error(), "with transfer syntax 1.2.840.10008.1.2")
	assert.True(t, errors.Is(notNegotiated, ErrNoPresentationCtx))
	assert.True(t, errors.Is(wrongEncoding, ErrNoPresentationCtx))
}

func TestNoRoleSelectionError(t *testing.T) {
	err := &NoRoleSelectionError{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", Role: "SCP"}
	assert.Equal(t, "no SCP role negotiated for 1.2.840.10008.5.1.4.1.1.2", err.Error())
}

func TestAssociationRejectReasonString(t *testing.T) {
	tests := []struct {
		reason   AssociationRejectReason
		expected string
	}{
		{RejectReasonNoReasonGiven, "no-reason-given"},
		{RejectReasonApplicationContextNotSupported, "application-context-not-supported"},
		{RejectReasonCallingAETitleNotRecognized, "calling-ae-title-not-recognized"},
		{RejectReasonCalledAETitleNotRecognized, "called-ae-title-not-recognized"},
		{AssociationRejectReason(0xFF), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.reason.String())
		})
	}
}

func TestAssociationRejectSourceString(t *testing.T) {
	tests := []struct {
		source   AssociationRejectSource
		expected string
	}{
		{RejectSourceServiceUser, "service-user"},
		{RejectSourceServiceProvider, "service-provider"},
		{RejectSourceServiceProviderPresentation, "service-provider-presentation"},
		{AssociationRejectSource(0xFF), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.source.String())
		})
	}
}
