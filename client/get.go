package client

import (
	"context"
	"errors"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/types"
)

// CGetRequest encapsulates the information required to perform a C-GET.
type CGetRequest struct {
	SOPClassUID string
	Priority    uint16
	Identifier  []byte
}

// CGetResponse represents a single C-GET response from the SCP.
type CGetResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// SendCGet performs a C-GET. The SCP sends each matching instance as a
// C-STORE sub-operation on this association; those are performed by
// Config.StoreHandler for the classes listed in Config.RetrieveSOPClasses
// while the responses are collected here.
func (a *Association) SendCGet(ctx context.Context, req *CGetRequest) ([]*CGetResponse, error) {
	if req == nil {
		return nil, errors.New("c-get request cannot be nil")
	}
	if len(req.Identifier) == 0 {
		return nil, errors.New("c-get request requires an identifier")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelGet
	}
	msg := &types.Message{
		CommandField:        types.CGetRQ,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
		CommandDataSetType:  types.DataSetPresent,
	}
	pc, f, err := a.request(ctx, msg, req.Identifier)
	if err != nil {
		return nil, err
	}

	var responses []*CGetResponse
	err = a.collect(ctx, pc, msg.MessageID, f, func(r *association.Response) {
		responses = append(responses, &CGetResponse{
			Status:                         r.Message.Status,
			MessageID:                      r.Message.MessageIDBeingRespondedTo,
			NumberOfRemainingSuboperations: r.Message.NumberOfRemainingSuboperations,
			NumberOfCompletedSuboperations: r.Message.NumberOfCompletedSuboperations,
			NumberOfFailedSuboperations:    r.Message.NumberOfFailedSuboperations,
			NumberOfWarningSuboperations:   r.Message.NumberOfWarningSuboperations,
		})
	})
	return responses, err
}
