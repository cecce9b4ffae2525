package pdu

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/types"
)

func roundTrip(t *testing.T, p PDU) PDU {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Write(p))

	got, err := NewDecoder(&buf, 0).Next()
	require.NoError(t, err)
	assert.Equal(t, p.Type(), got.Type())
	return got
}

func TestPDUTypeNames(t *testing.T) {
	tests := []struct {
		pduType  byte
		expected string
	}{
		{TypeAssociateRQ, "A-ASSOCIATE-RQ"},
		{TypeAssociateAC, "A-ASSOCIATE-AC"},
		{TypeAssociateRJ, "A-ASSOCIATE-RJ"},
		{TypePDataTF, "P-DATA-TF"},
		{TypeReleaseRQ, "A-RELEASE-RQ"},
		{TypeReleaseRP, "A-RELEASE-RP"},
		{TypeAbort, "A-ABORT"},
		{0x09, "PDU(0x09)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Name(tt.pduType))
		})
	}
}

func TestAssociateRQ_RoundTrip(t *testing.T) {
	rq := &AssociateRQ{
		CalledAETitle:  "STORESCP",
		CallingAETitle: "MODALITY",
		UserInformation: UserInformation{
			MaxPDULength:              16384,
			ImplementationClassUID:    "1.2.3.4",
			ImplementationVersionName: "DICOMUL_1",
			MaxOpsInvoked:             4,
			MaxOpsPerformed:           1,
			RoleSelections: []RoleSelection{
				{SOPClassUID: types.CTImageStorage, SCU: false, SCP: true},
			},
		},
	}
	echoID := rq.AddPresentationContext(types.VerificationSOPClass, types.ImplicitVRLittleEndian)
	ctID := rq.AddPresentationContext(types.CTImageStorage, types.DefaultTransferSyntaxes()...)
	assert.Equal(t, byte(1), echoID)
	assert.Equal(t, byte(3), ctID)

	got := roundTrip(t, rq).(*AssociateRQ)

	assert.Equal(t, ProtocolVersion, got.ProtocolVersion)
	assert.Equal(t, "STORESCP", got.CalledAETitle)
	assert.Equal(t, "MODALITY", got.CallingAETitle)
	assert.Equal(t, types.ApplicationContextUID, got.ApplicationContext)
	require.Len(t, got.PresentationContexts, 2)
	assert.Equal(t, types.CTImageStorage, got.PresentationContext(3).AbstractSyntax)
	assert.Equal(t, types.DefaultTransferSyntaxes(), got.PresentationContext(3).TransferSyntaxes)
	assert.Nil(t, got.PresentationContext(5))
	assert.Equal(t, uint32(16384), got.MaxPDULength)
	assert.Equal(t, "1.2.3.4", got.ImplementationClassUID)
	assert.Equal(t, "DICOMUL_1", got.ImplementationVersionName)
	assert.Equal(t, uint16(4), got.MaxOpsInvoked)
	assert.Equal(t, uint16(1), got.MaxOpsPerformed)

	rs := got.RoleSelectionFor(types.CTImageStorage)
	require.NotNil(t, rs)
	assert.False(t, rs.SCU)
	assert.True(t, rs.SCP)
	assert.Nil(t, got.RoleSelectionFor(types.MRImageStorage))
}

func TestAssociateRQ_AbsentAsyncOpsWindowMeansOne(t *testing.T) {
	rq := &AssociateRQ{
		CalledAETitle:   "A",
		CallingAETitle:  "B",
		UserInformation: UserInformation{MaxPDULength: 1024, MaxOpsInvoked: 1, MaxOpsPerformed: 1},
	}
	rq.AddPresentationContext(types.VerificationSOPClass, types.ImplicitVRLittleEndian)

	buf, err := Encode(rq)
	require.NoError(t, err)
	assert.NotContains(t, string(buf), string([]byte{itemAsyncOpsWindow, 0x00, 0x00, 0x04}))

	got := roundTrip(t, rq).(*AssociateRQ)
	assert.Equal(t, uint16(1), got.MaxOpsInvoked)
	assert.Equal(t, uint16(1), got.MaxOpsPerformed)
}

func TestAssociateAC_RoundTrip(t *testing.T) {
	ac := &AssociateAC{
		CalledAETitle:  "STORESCP",
		CallingAETitle: "MODALITY",
		PresentationContexts: []PresentationContextAC{
			{ID: 1, Result: ResultAcceptance, TransferSyntax: types.ImplicitVRLittleEndian},
			{ID: 3, Result: ResultAbstractSyntaxNotSupported},
		},
		UserInformation: UserInformation{MaxPDULength: 0, MaxOpsInvoked: 0, MaxOpsPerformed: 0},
	}

	got := roundTrip(t, ac).(*AssociateAC)

	require.Len(t, got.PresentationContexts, 2)
	assert.True(t, got.PresentationContext(1).IsAccepted())
	assert.Equal(t, types.ImplicitVRLittleEndian, got.PresentationContext(1).TransferSyntax)
	assert.False(t, got.PresentationContext(3).IsAccepted())
	assert.Empty(t, got.PresentationContext(3).TransferSyntax)
	assert.Equal(t, uint32(0), got.MaxPDULength)
	assert.Equal(t, uint16(0), got.MaxOpsInvoked, "unlimited window survives encoding")
}

func TestAssociateRJ_RoundTrip(t *testing.T) {
	rejection := dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser,
		dicomerrors.RejectReasonCalledAETitleNotRecognized, "unknown AE")

	got := roundTrip(t, NewAssociateRJ(rejection)).(*AssociateRJ)

	err := got.Err()
	assert.Equal(t, dicomerrors.RejectResultPermanent, err.Result)
	assert.Equal(t, dicomerrors.RejectSourceServiceUser, err.Source)
	assert.Equal(t, dicomerrors.RejectReasonCalledAETitleNotRecognized, err.Reason)
	assert.True(t, errors.Is(err, dicomerrors.ErrAssociationRejected))
}

func TestReleaseAndAbort_Encoding(t *testing.T) {
	rq, err := Encode(&ReleaseRQ{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}, rq)

	rp, err := Encode(&ReleaseRP{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}, rp)

	abort := NewAbort(dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedPDU, nil))
	ab, err := Encode(abort)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x02, 0x02}, ab)

	got := roundTrip(t, abort).(*Abort)
	assert.Equal(t, dicomerrors.AbortSourceServiceProvider, got.Err().Source)
	assert.Equal(t, dicomerrors.AbortReasonUnexpectedPDU, got.Err().Reason)
}

func TestPDataTF_RoundTrip(t *testing.T) {
	p := &PDataTF{PDVs: []PDV{
		{ContextID: 1, Command: true, Last: true, Data: []byte{0x01, 0x02}},
		{ContextID: 1, Command: false, Last: false, Data: []byte{0x03}},
	}}

	got := roundTrip(t, p).(*PDataTF)

	require.Len(t, got.PDVs, 2)
	assert.Equal(t, byte(0x03), got.PDVs[0].ControlHeader())
	assert.Equal(t, []byte{0x01, 0x02}, got.PDVs[0].Data)
	assert.False(t, got.PDVs[1].Command)
	assert.False(t, got.PDVs[1].Last)
	assert.Equal(t, []byte{0x03}, got.PDVs[1].Data)
}

func TestDecoder_SequentialPDUs(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Write(&ReleaseRQ{}))
	require.NoError(t, enc.Write(&ReleaseRP{}))

	dec := NewDecoder(&buf, 0)
	first, err := dec.Next()
	require.NoError(t, err)
	assert.IsType(t, &ReleaseRQ{}, first)

	second, err := dec.Next()
	require.NoError(t, err)
	assert.IsType(t, &ReleaseRP{}, second)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		max    uint32
		reason dicomerrors.AbortReason
	}{
		{
			name:   "unrecognized type",
			input:  []byte{0x09, 0x00, 0x00, 0x00, 0x00, 0x00},
			reason: dicomerrors.AbortReasonUnrecognizedPDU,
		},
		{
			name:   "release with wrong length",
			input:  []byte{0x05, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00},
			reason: dicomerrors.AbortReasonInvalidPDUParameterValue,
		},
		{
			name:   "P-DATA over limit",
			input:  []byte{0x04, 0x00, 0x00, 0x00, 0x01, 0x00},
			max:    128,
			reason: dicomerrors.AbortReasonInvalidPDUParameterValue,
		},
		{
			name:   "PDV length past end",
			input:  []byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x10, 0x01, 0x03},
			reason: dicomerrors.AbortReasonInvalidPDUParameterValue,
		},
		{
			name:   "associate too short",
			input:  []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01},
			reason: dicomerrors.AbortReasonInvalidPDUParameterValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tt.input), tt.max).Next()

			var abortErr *dicomerrors.AbortError
			require.True(t, errors.As(err, &abortErr), "got %v", err)
			assert.Equal(t, dicomerrors.AbortSourceServiceProvider, abortErr.Source)
			assert.Equal(t, tt.reason, abortErr.Reason)
			assert.True(t, errors.Is(err, dicomerrors.ErrInvalidPDU))
		})
	}
}

func TestDecoder_UnexpectedItemInAssociate(t *testing.T) {
	ac := &AssociateAC{CalledAETitle: "A", CallingAETitle: "B"}
	buf, err := Encode(ac)
	require.NoError(t, err)

	// swap the application context item type for an unknown one
	buf[HeaderLength+associateFixedSize] = 0x99

	_, err = NewDecoder(bytes.NewReader(buf), 0).Next()
	var abortErr *dicomerrors.AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, dicomerrors.AbortReasonUnrecognizedPDUParameter, abortErr.Reason)
}

func TestDecoder_TruncatedBody(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0x06, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00}), 0).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestAETitlePadding(t *testing.T) {
	rq := &AssociateRQ{CalledAETitle: "A_VERY_LONG_AE_TITLE", CallingAETitle: "SCU"}
	got := roundTrip(t, rq).(*AssociateRQ)
	assert.Equal(t, "A_VERY_LONG_AE_T", got.CalledAETitle)
	assert.Equal(t, "SCU", got.CallingAETitle)
}
