package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomul/types"
)

func TestResponseBuilderCopiesRequest(t *testing.T) {
	req := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              11,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3.4",
	}
	b := NewResponseBuilder(req)

	rsp := b.CStoreResponse(types.StatusSuccess, "")
	assert.Equal(t, uint16(types.CStoreRSP), rsp.CommandField)
	assert.Equal(t, uint16(11), rsp.MessageIDBeingRespondedTo)
	assert.Equal(t, types.CTImageStorage, rsp.AffectedSOPClassUID)
	assert.Equal(t, "1.2.3.4", rsp.AffectedSOPInstanceUID)
	assert.Equal(t, types.NoDataSet, rsp.CommandDataSetType)

	rsp = b.CStoreResponse(types.StatusOutOfResources, "1.2.3.5")
	assert.Equal(t, "1.2.3.5", rsp.AffectedSOPInstanceUID)
	assert.Equal(t, uint16(types.StatusOutOfResources), rsp.Status)

	assert.Equal(t, "1.2.3.4", NewCStoreResponse(req, types.StatusSuccess).AffectedSOPInstanceUID)
}

func TestCFindResponses(t *testing.T) {
	req := &types.Message{CommandField: types.CFindRQ, MessageID: 2, AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelFind}

	pending := NewCFindPendingResponse(req)
	assert.Equal(t, uint16(types.CFindRSP), pending.CommandField)
	assert.Equal(t, uint16(types.StatusPending), pending.Status)
	assert.True(t, pending.HasDataSet())

	final := NewCFindSuccessResponse(req)
	assert.Equal(t, uint16(types.StatusSuccess), final.Status)
	assert.False(t, final.HasDataSet())

	failed := NewCFindErrorResponse(req, types.StatusUnableToProcess)
	assert.Equal(t, uint16(types.StatusUnableToProcess), failed.Status)
	assert.False(t, failed.HasDataSet())
}

func TestRetrieveResponses(t *testing.T) {
	req := &types.Message{CommandField: types.CMoveRQ, MessageID: 5}

	pending := NewCMovePendingResponse(req, 1, 0, 2, 7)
	require.NotNil(t, pending.NumberOfRemainingSuboperations)
	assert.Equal(t, uint16(7), *pending.NumberOfRemainingSuboperations)
	assert.Equal(t, uint16(1), *pending.NumberOfCompletedSuboperations)
	assert.Equal(t, uint16(2), *pending.NumberOfWarningSuboperations)

	done := NewCMoveSuccessResponse(req, 10, 0, 0)
	assert.Equal(t, uint16(types.StatusSuccess), done.Status)
	assert.Equal(t, uint16(0), *done.NumberOfRemainingSuboperations)
	assert.Equal(t, uint16(10), *done.NumberOfCompletedSuboperations)

	failed := NewCMoveErrorResponse(req, types.StatusUnableToProcess)
	assert.Nil(t, failed.NumberOfCompletedSuboperations)
	assert.Nil(t, failed.NumberOfRemainingSuboperations)

	completed, failedOps := uint16(3), uint16(1)
	get := NewResponseBuilder(&types.Message{CommandField: types.CGetRQ, MessageID: 6}).
		CGetResponse(types.StatusPendingWarning, &completed, &failedOps, nil, nil)
	assert.Equal(t, uint16(types.CGetRSP), get.CommandField)
	assert.Equal(t, uint16(6), get.MessageIDBeingRespondedTo)
	assert.Equal(t, uint16(1), *get.NumberOfFailedSuboperations)
	assert.Nil(t, get.NumberOfWarningSuboperations)
}
