package dimse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/types"
)

func TestEncodeDecodeCommand_Request(t *testing.T) {
	msg := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              42,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3.4.5",
		Priority:               PriorityLow,
		CommandDataSetType:     types.DataSetPresent,
	}

	data, err := EncodeCommand(msg)
	require.NoError(t, err)
	assert.Zero(t, len(data)%2, "command set must have even length")

	decoded, err := DecodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestEncodeDecodeCommand_MoveResponse(t *testing.T) {
	remaining, completed, failed, warning := uint16(3), uint16(2), uint16(1), uint16(0)
	msg := &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      7,
		AffectedSOPClassUID:            types.StudyRootQueryRetrieveInformationModelMove,
		CommandDataSetType:             types.NoDataSet,
		Status:                         types.StatusPending,
		NumberOfRemainingSuboperations: &remaining,
		NumberOfCompletedSuboperations: &completed,
		NumberOfFailedSuboperations:    &failed,
		NumberOfWarningSuboperations:   &warning,
	}

	data, err := EncodeCommand(msg)
	require.NoError(t, err)

	decoded, err := DecodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
	assert.True(t, decoded.IsResponse())
}

func TestEncodeCommand_SuccessStatusIsEncoded(t *testing.T) {
	msg := &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusSuccess,
	}

	data, err := EncodeCommand(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), string([]byte{0x00, 0x00, 0x00, 0x09, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00}))
}

func TestEncodeCommand_CancelCarriesRespondedToID(t *testing.T) {
	msg := &types.Message{
		CommandField:              types.CCancelRQ,
		MessageIDBeingRespondedTo: 9,
		CommandDataSetType:        types.NoDataSet,
	}

	data, err := EncodeCommand(msg)
	require.NoError(t, err)

	decoded, err := DecodeCommand(data)
	require.NoError(t, err)
	assert.True(t, decoded.IsCancel())
	assert.Equal(t, uint16(9), decoded.MessageIDBeingRespondedTo)
	assert.Zero(t, decoded.MessageID)
}

func TestDecodeCommand_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", []byte{0x00, 0x00, 0x00}},
		{"value past end", []byte{0x00, 0x00, 0x00, 0x01, 0x08, 0x00, 0x00, 0x00, 0x30, 0x00}},
		{"missing command field", AppendImplicitElement(nil, 0x0000, tagMessageID, []byte{0x01, 0x00})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.data)
			assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
		})
	}
}

func TestFragment(t *testing.T) {
	command := make([]byte, 30)
	data := make([]byte, 25)

	pdus := Fragment(3, command, data, 16)

	// 10 bytes of payload per PDU
	require.Len(t, pdus, 6)
	for i, p := range pdus {
		require.Len(t, p.PDVs, 1)
		assert.Equal(t, byte(3), p.PDVs[0].ContextID)
		assert.LessOrEqual(t, len(p.PDVs[0].Data)+6, 16)
		assert.Equal(t, i < 3, p.PDVs[0].Command)
	}
	assert.True(t, pdus[2].PDVs[0].Last)
	assert.False(t, pdus[3].PDVs[0].Last)
	assert.True(t, pdus[5].PDVs[0].Last)
	assert.Len(t, pdus[5].PDVs[0].Data, 5)
}

func TestFragment_Unlimited(t *testing.T) {
	pdus := Fragment(1, make([]byte, 100), nil, 0)
	require.Len(t, pdus, 1)
	assert.True(t, pdus[0].PDVs[0].Command)
	assert.True(t, pdus[0].PDVs[0].Last)
	assert.Len(t, pdus[0].PDVs[0].Data, 100)
}

func TestAssembler_ReassemblesFragments(t *testing.T) {
	msg := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           5,
		AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelFind,
		CommandDataSetType:  types.DataSetPresent,
	}
	identifier := []byte("0123456789abcdefghij")

	pdus, err := Encode(1, msg, identifier, 12)
	require.NoError(t, err)
	require.Greater(t, len(pdus), 2)

	asm := NewAssembler()
	var got *Received
	for i, p := range pdus {
		for j := range p.PDVs {
			r, err := asm.Feed(&p.PDVs[j])
			require.NoError(t, err)
			if i < len(pdus)-1 {
				assert.Nil(t, r)
			}
			got = r
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, byte(1), got.ContextID)
	assert.Equal(t, msg, got.Message)
	assert.Equal(t, identifier, got.Data)
}

func TestAssembler_CommandOnly(t *testing.T) {
	msg := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           1,
		AffectedSOPClassUID: types.VerificationSOPClass,
		CommandDataSetType:  types.NoDataSet,
	}
	pdus, err := Encode(1, msg, nil, 0)
	require.NoError(t, err)
	require.Len(t, pdus, 1)

	asm := NewAssembler()
	got, err := asm.Feed(&pdus[0].PDVs[0])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Data)

	// the assembler is ready for the next message
	got, err = asm.Feed(&pdus[0].PDVs[0])
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestAssembler_ProtocolErrors(t *testing.T) {
	command, err := EncodeCommand(&types.Message{
		CommandField:       types.CStoreRQ,
		MessageID:          1,
		CommandDataSetType: types.DataSetPresent,
	})
	require.NoError(t, err)

	t.Run("data before command", func(t *testing.T) {
		_, err := NewAssembler().Feed(&pdu.PDV{ContextID: 1, Last: true, Data: []byte{0x00}})
		assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
	})

	t.Run("context switch mid-message", func(t *testing.T) {
		asm := NewAssembler()
		_, err := asm.Feed(&pdu.PDV{ContextID: 1, Command: true, Last: true, Data: command})
		require.NoError(t, err)
		_, err = asm.Feed(&pdu.PDV{ContextID: 3, Last: true, Data: []byte{0x00}})
		assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
	})

	t.Run("second command before data set", func(t *testing.T) {
		asm := NewAssembler()
		_, err := asm.Feed(&pdu.PDV{ContextID: 1, Command: true, Last: true, Data: command})
		require.NoError(t, err)
		_, err = asm.Feed(&pdu.PDV{ContextID: 1, Command: true, Last: true, Data: command})
		assert.True(t, errors.Is(err, dicomerrors.ErrInvalidMessage))
	})
}

func TestEncode_DataSetMismatch(t *testing.T) {
	_, err := Encode(1, &types.Message{CommandField: types.CStoreRQ, CommandDataSetType: types.DataSetPresent}, nil, 0)
	assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)

	_, err = Encode(1, &types.Message{CommandField: types.CEchoRQ, CommandDataSetType: types.NoDataSet}, []byte{1}, 0)
	assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
}
