// Package services provides DIMSE service handlers for use as the Handler
// of an association.ApplicationEntity.
package services

import (
	"context"
	"log/slog"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/types"
)

// EchoService answers C-ECHO verification requests.
//
// C-ECHO is the DICOM equivalent of a ping: it carries no data set and the
// response only tells the requester that the application entity is up.
type EchoService struct{}

// NewEchoService creates a C-ECHO service.
func NewEchoService() *EchoService {
	return &EchoService{}
}

// HandleDIMSE answers a C-ECHO-RQ with a success response.
func (s *EchoService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	logger := slog.Default()
	if as, ok := association.FromContext(ctx); ok {
		logger = logger.With("association", as.String(), "calling_ae", as.CallingAET())
	}
	logger.DebugContext(ctx, "Processing C-ECHO request",
		"message_id", msg.MessageID,
		"affected_sop_class", msg.AffectedSOPClassUID)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	response := NewResponseBuilder(msg).CEchoResponse(types.StatusSuccess)
	logger.InfoContext(ctx, "C-ECHO request successful", "message_id", msg.MessageID)
	return response, nil, nil
}
