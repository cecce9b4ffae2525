package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/types"
)

// CFindRequest encapsulates the information required to perform a C-FIND
// query. Identifier is the encoded query data set.
type CFindRequest struct {
	SOPClassUID string
	Priority    uint16
	Identifier  []byte
}

// CFindResponse represents a single C-FIND response from the SCP. Pending
// responses carry a matching identifier.
type CFindResponse struct {
	Status     uint16
	MessageID  uint16
	Identifier []byte
}

// SendCFind performs a C-FIND query and returns all responses in order.
// If ctx is done before the final response the query is canceled with
// C-CANCEL, and the responses received so far are returned with ctx.Err().
func (a *Association) SendCFind(ctx context.Context, req *CFindRequest) ([]*CFindResponse, error) {
	if req == nil {
		return nil, errors.New("c-find request cannot be nil")
	}
	if len(req.Identifier) == 0 {
		return nil, errors.New("c-find request requires an identifier")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelFind
	}
	msg := &types.Message{
		CommandField:        types.CFindRQ,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
		CommandDataSetType:  types.DataSetPresent,
	}
	pc, f, err := a.request(ctx, msg, req.Identifier)
	if err != nil {
		return nil, err
	}

	var responses []*CFindResponse
	err = a.collect(ctx, pc, msg.MessageID, f, func(r *association.Response) {
		responses = append(responses, &CFindResponse{
			Status:     r.Message.Status,
			MessageID:  r.Message.MessageIDBeingRespondedTo,
			Identifier: r.Data,
		})
	})
	return responses, err
}

// CMoveRequest asks the SCP to send the matching instances to Destination.
type CMoveRequest struct {
	SOPClassUID string
	Priority    uint16
	Destination string
	Identifier  []byte
}

// CMoveResponse reports the progress of a C-MOVE.
type CMoveResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// SendCMove performs a C-MOVE and returns its responses in order.
func (a *Association) SendCMove(ctx context.Context, req *CMoveRequest) ([]*CMoveResponse, error) {
	if req == nil {
		return nil, errors.New("c-move request cannot be nil")
	}
	if req.Destination == "" {
		return nil, errors.New("c-move request requires a destination AE title")
	}
	if len(req.Identifier) == 0 {
		return nil, errors.New("c-move request requires an identifier")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelMove
	}
	msg := &types.Message{
		CommandField:        types.CMoveRQ,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
		MoveDestination:     req.Destination,
		CommandDataSetType:  types.DataSetPresent,
	}
	pc, f, err := a.request(ctx, msg, req.Identifier)
	if err != nil {
		return nil, err
	}

	var responses []*CMoveResponse
	err = a.collect(ctx, pc, msg.MessageID, f, func(r *association.Response) {
		responses = append(responses, &CMoveResponse{
			Status:                         r.Message.Status,
			MessageID:                      r.Message.MessageIDBeingRespondedTo,
			NumberOfRemainingSuboperations: r.Message.NumberOfRemainingSuboperations,
			NumberOfCompletedSuboperations: r.Message.NumberOfCompletedSuboperations,
			NumberOfFailedSuboperations:    r.Message.NumberOfFailedSuboperations,
			NumberOfWarningSuboperations:   r.Message.NumberOfWarningSuboperations,
		})
	})
	if err != nil {
		return responses, fmt.Errorf("c-move to %s: %w", req.Destination, err)
	}
	return responses, nil
}
