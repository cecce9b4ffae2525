// Package interfaces contains the service and handler interfaces shared by
// the association engine and the DIMSE services.
package interfaces

import (
	"context"

	"github.com/caio-sobreiro/dicomul/types"
)

// ServiceHandler handles one incoming DIMSE request and produces its final
// response. The context is canceled when the peer sends a C-CANCEL-RQ for
// the request or the association goes away.
type ServiceHandler interface {
	HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error)
}

// StreamingServiceHandler interface for multi-response DIMSE operations
type StreamingServiceHandler interface {
	HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, responder ResponseSender) error
}

// ResponseSender interface for sending intermediate responses
type ResponseSender interface {
	SendResponse(msg *types.Message, data []byte) error
}

// CGetResponder interface for C-GET operations that need to send C-STORE sub-operations
type CGetResponder interface {
	ResponseSender
	// SendCStore sends a C-STORE sub-operation on the same association and
	// returns the status of the C-STORE-RSP.
	SendCStore(ctx context.Context, sopClassUID, sopInstanceUID string, data []byte) (uint16, error)
}
