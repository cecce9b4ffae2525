package services

import (
	"github.com/caio-sobreiro/dicomul/types"
)

// ResponseBuilder creates the responses to one request message, copying
// MessageIDBeingRespondedTo and AffectedSOPClassUID from it.
type ResponseBuilder struct {
	request *types.Message
}

// NewResponseBuilder creates a builder for responses to request.
func NewResponseBuilder(request *types.Message) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

func (b *ResponseBuilder) base(commandField, status uint16) *types.Message {
	return &types.Message{
		CommandField:              commandField,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}

// CEchoResponse creates a C-ECHO-RSP.
func (b *ResponseBuilder) CEchoResponse(status uint16) *types.Message {
	rsp := b.base(types.CEchoRSP, status)
	if rsp.AffectedSOPClassUID == "" {
		rsp.AffectedSOPClassUID = types.VerificationSOPClass
	}
	return rsp
}

// CFindResponse creates a C-FIND-RSP. Pending responses carry a matching
// identifier, so hasDataset is normally true for them and false for the
// final response.
func (b *ResponseBuilder) CFindResponse(status uint16, hasDataset bool) *types.Message {
	rsp := b.base(types.CFindRSP, status)
	if hasDataset {
		rsp.CommandDataSetType = types.DataSetPresent
	}
	return rsp
}

// CMoveResponse creates a C-MOVE-RSP with the given sub-operation counts.
// Nil counts are omitted.
func (b *ResponseBuilder) CMoveResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	return b.withCounts(b.base(types.CMoveRSP, status), completed, failed, warning, remaining)
}

// CGetResponse creates a C-GET-RSP with the given sub-operation counts.
func (b *ResponseBuilder) CGetResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	return b.withCounts(b.base(types.CGetRSP, status), completed, failed, warning, remaining)
}

func (b *ResponseBuilder) withCounts(rsp *types.Message, completed, failed, warning, remaining *uint16) *types.Message {
	rsp.NumberOfCompletedSuboperations = completed
	rsp.NumberOfFailedSuboperations = failed
	rsp.NumberOfWarningSuboperations = warning
	rsp.NumberOfRemainingSuboperations = remaining
	return rsp
}

// CStoreResponse creates a C-STORE-RSP. An empty sopInstanceUID uses the
// instance UID of the request.
func (b *ResponseBuilder) CStoreResponse(status uint16, sopInstanceUID string) *types.Message {
	if sopInstanceUID == "" {
		sopInstanceUID = b.request.AffectedSOPInstanceUID
	}
	rsp := b.base(types.CStoreRSP, status)
	rsp.AffectedSOPInstanceUID = sopInstanceUID
	return rsp
}

// NewCEchoResponse creates a C-ECHO-RSP for request.
func NewCEchoResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CEchoResponse(status)
}

// NewCFindPendingResponse creates a pending C-FIND-RSP carrying a match.
func NewCFindPendingResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusPending, true)
}

// NewCFindSuccessResponse creates the final successful C-FIND-RSP.
func NewCFindSuccessResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusSuccess, false)
}

// NewCFindErrorResponse creates a final C-FIND-RSP with status.
func NewCFindErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CFindResponse(status, false)
}

// NewCMoveSuccessResponse creates the final successful C-MOVE-RSP.
func NewCMoveSuccessResponse(request *types.Message, completed, failed, warning uint16) *types.Message {
	remaining := uint16(0)
	return NewResponseBuilder(request).CMoveResponse(types.StatusSuccess, &completed, &failed, &warning, &remaining)
}

// NewCMovePendingResponse creates a pending C-MOVE-RSP.
func NewCMovePendingResponse(request *types.Message, completed, failed, warning, remaining uint16) *types.Message {
	return NewResponseBuilder(request).CMoveResponse(types.StatusPending, &completed, &failed, &warning, &remaining)
}

// NewCMoveErrorResponse creates a final C-MOVE-RSP with status and no counts.
func NewCMoveErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CMoveResponse(status, nil, nil, nil, nil)
}

// NewCStoreResponse creates a C-STORE-RSP for request.
func NewCStoreResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CStoreResponse(status, "")
}
