package client

import (
	"context"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/types"
)

// CEchoResponse represents the result of a C-ECHO operation.
type CEchoResponse struct {
	Status    uint16
	MessageID uint16
}

// SendCEcho performs a C-ECHO (verification) request and returns the
// response status. A failure status is also returned as a
// *errors.DIMSEError.
func (a *Association) SendCEcho(ctx context.Context) (*CEchoResponse, error) {
	msg := &types.Message{
		CommandField:        types.CEchoRQ,
		AffectedSOPClassUID: types.VerificationSOPClass,
		CommandDataSetType:  types.NoDataSet,
	}
	_, f, err := a.request(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	rsp, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &CEchoResponse{
		Status:    rsp.Message.Status,
		MessageID: rsp.Message.MessageIDBeingRespondedTo,
	}, dicomerrors.StatusError("C-ECHO", rsp.Message.Status)
}
