package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/interfaces"
	"github.com/caio-sobreiro/dicomul/types"
)

// Registry routes incoming DIMSE requests to the handler registered for
// their command field. It is the usual Handler of an
// association.ApplicationEntity.
//
// Requests of one association are performed concurrently, so the registry
// may be used from several goroutines at once.
//
//	registry := services.NewRegistry()
//	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService())
//	registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(store))
//	ae := association.NewApplicationEntity("STORESCP", registry)
type Registry struct {
	mu       sync.RWMutex
	handlers map[uint16]interfaces.ServiceHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[uint16]interfaces.ServiceHandler),
	}
}

// RegisterHandler registers handler for a request command field, replacing
// any previous registration.
func (r *Registry) RegisterHandler(commandField uint16, handler interfaces.ServiceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[commandField] = handler
}

// UnregisterHandler removes the handler for commandField.
func (r *Registry) UnregisterHandler(commandField uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, commandField)
}

func (r *Registry) lookup(ctx context.Context, msg *types.Message) (interfaces.ServiceHandler, error) {
	slog.DebugContext(ctx, "Routing DIMSE message",
		"command", types.CommandName(msg.CommandField),
		"message_id", msg.MessageID)

	r.mu.RLock()
	handler, ok := r.handlers[msg.CommandField]
	r.mu.RUnlock()
	if !ok {
		slog.WarnContext(ctx, "No handler registered for DIMSE command",
			"command_field", fmt.Sprintf("0x%04X", msg.CommandField))
		return nil, fmt.Errorf("%w: 0x%04X", dicomerrors.ErrUnsupportedCommand, msg.CommandField)
	}
	return handler, nil
}

// HandleDIMSE routes a request to a single-response handler. Requests
// without a handler fail with errors.ErrUnsupportedCommand.
func (r *Registry) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	handler, err := r.lookup(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	return handler.HandleDIMSE(ctx, msg, data)
}

// HandleDIMSEStreaming routes a request, using the streaming interface
// when the registered handler has one and sending its single response
// through responder otherwise.
func (r *Registry) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, responder interfaces.ResponseSender) error {
	handler, err := r.lookup(ctx, msg)
	if err != nil {
		return err
	}

	if streamingHandler, ok := handler.(interfaces.StreamingServiceHandler); ok {
		return streamingHandler.HandleDIMSEStreaming(ctx, msg, data, responder)
	}

	responseMsg, responseData, err := handler.HandleDIMSE(ctx, msg, data)
	if err != nil {
		return err
	}
	return responder.SendResponse(responseMsg, responseData)
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[commandField]
	return ok
}

// RegisteredCommands returns the registered command fields in ascending order.
func (r *Registry) RegisteredCommands() []uint16 {
	r.mu.RLock()
	commands := make([]uint16, 0, len(r.handlers))
	for cmd := range r.handlers {
		commands = append(commands, cmd)
	}
	r.mu.RUnlock()
	sort.Slice(commands, func(i, j int) bool { return commands[i] < commands[j] })
	return commands
}

// CreateErrorResponse builds a final response to req carrying status and
// no data set.
func CreateErrorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}
