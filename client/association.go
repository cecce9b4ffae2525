// Package client is a DICOM SCU: it requests an association with a remote
// SCP and runs verification, query, retrieve and storage operations on it.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/interfaces"
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/types"
)

// Config holds client configuration.
type Config struct {
	CallingAETitle string
	CalledAETitle  string
	// AbstractSyntaxes to propose (default: DefaultAbstractSyntaxes).
	AbstractSyntaxes []string
	// PreferredTransferSyntaxes to propose for each abstract syntax, first
	// preferred (default: Explicit VR, Implicit VR).
	PreferredTransferSyntaxes []string
	// RetrieveSOPClasses are storage classes received through C-GET. They
	// are proposed with the SCP role and performed by StoreHandler.
	RetrieveSOPClasses []string
	// StoreHandler performs the C-STORE sub-operations of C-GET.
	StoreHandler interfaces.ServiceHandler
	// Association holds timeouts and PDU limits (default: DefaultConfig).
	Association *association.Config
	// Logger for the association (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultAbstractSyntaxes are proposed when Config.AbstractSyntaxes is empty.
func DefaultAbstractSyntaxes() []string {
	return []string{
		types.VerificationSOPClass,
		types.StudyRootQueryRetrieveInformationModelFind,
		types.StudyRootQueryRetrieveInformationModelMove,
		types.StudyRootQueryRetrieveInformationModelGet,
		types.PatientRootQueryRetrieveInformationModelFind,
		types.PatientRootQueryRetrieveInformationModelMove,
		types.PatientRootQueryRetrieveInformationModelGet,
		types.CTImageStorage,
		types.MRImageStorage,
		types.SecondaryCaptureImageStorage,
	}
}

// Association is a client-side DICOM association.
type Association struct {
	*association.Association
	device *association.Device
	logger *slog.Logger
}

// Connect dials address and requests an association.
func Connect(ctx context.Context, address string, config Config) (*Association, error) {
	cfg := association.DefaultConfig()
	if config.Association != nil {
		cfg = *config.Association
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dicomerrors.NewNetworkError("connect "+address, err)
	}

	assoc, err := ConnectConn(ctx, conn, config, cfg)
	if err != nil {
		return nil, err
	}
	assoc.logger.Info("DICOM association established",
		"remote_addr", address,
		"calling_ae", assoc.CallingAET(),
		"called_ae", assoc.CalledAET())
	return assoc, nil
}

// ConnectConn requests an association over an established connection.
func ConnectConn(ctx context.Context, conn net.Conn, config Config, cfg association.Config) (*Association, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	device := association.NewDevice(config.CallingAETitle, cfg, logger)
	ae := association.NewApplicationEntity(config.CallingAETitle, config.StoreHandler)
	device.AddApplicationEntity(ae)

	as, err := ae.Connect(ctx, conn, buildAssociateRQ(config))
	if err != nil {
		device.Wait()
		return nil, err
	}
	return &Association{Association: as, device: device, logger: logger}, nil
}

func buildAssociateRQ(config Config) *pdu.AssociateRQ {
	abstractSyntaxes := config.AbstractSyntaxes
	if len(abstractSyntaxes) == 0 {
		abstractSyntaxes = DefaultAbstractSyntaxes()
	}
	transferSyntaxes := config.PreferredTransferSyntaxes
	if len(transferSyntaxes) == 0 {
		transferSyntaxes = types.DefaultTransferSyntaxes()
	}

	rq := &pdu.AssociateRQ{
		CalledAETitle:  config.CalledAETitle,
		CallingAETitle: config.CallingAETitle,
	}
	for _, uid := range abstractSyntaxes {
		rq.AddPresentationContext(uid, transferSyntaxes...)
	}
	for _, uid := range config.RetrieveSOPClasses {
		rq.AddPresentationContext(uid, transferSyntaxes...)
		rq.RoleSelections = append(rq.RoleSelections, pdu.RoleSelection{SOPClassUID: uid, SCU: false, SCP: true})
	}
	return rq
}

// Close releases the association and waits for its goroutines. If the
// release fails the association is aborted.
func (a *Association) Close(ctx context.Context) error {
	err := a.Release(ctx)
	if err != nil {
		a.logger.Warn("Failed to release association", "association", a.String(), "error", err)
		a.Abort()
	}
	a.device.Wait()
	return err
}

// request invokes msg on the context negotiated for its SOP class and
// returns the future collecting its responses.
func (a *Association) request(ctx context.Context, msg *types.Message, data []byte) (*association.PresentationContext, *association.FutureResponse, error) {
	pc, err := a.PresentationContextFor(msg.AffectedSOPClassUID)
	if err != nil {
		return nil, nil, err
	}
	if !a.IsSCUFor(msg.AffectedSOPClassUID) {
		return nil, nil, &dicomerrors.NoRoleSelectionError{SOPClassUID: msg.AffectedSOPClassUID, Role: "SCU"}
	}
	if msg.Priority == 0 {
		msg.Priority = dimse.PriorityMedium
	}

	f := association.NewFutureResponse()
	if _, err := a.Invoke(ctx, pc, msg, data, f); err != nil {
		return nil, nil, fmt.Errorf("send %s: %w", types.CommandName(msg.CommandField), err)
	}
	a.logger.Debug("Sent DIMSE request",
		"association", a.String(),
		"command", types.CommandName(msg.CommandField),
		"message_id", msg.MessageID)
	return pc, f, nil
}

// collect passes every response of a request to fn. When ctx is done
// before the final response, a C-CANCEL-RQ is sent once and the remaining
// responses are still collected, bounded by the response timeout.
func (a *Association) collect(ctx context.Context, pc *association.PresentationContext, msgID uint16, f *association.FutureResponse, fn func(*association.Response)) error {
	waitCtx := ctx
	canceled := false
	for {
		r, err := f.Next(waitCtx)
		switch {
		case err == nil:
			fn(r)
		case errors.Is(err, io.EOF):
			if canceled {
				return ctx.Err()
			}
			return nil
		case !canceled && ctx.Err() != nil:
			canceled = true
			waitCtx = context.WithoutCancel(ctx)
			if cerr := a.Cancel(pc, msgID); cerr != nil {
				a.logger.Debug("C-CANCEL not sent", "message_id", msgID, "error", cerr)
			} else {
				a.logger.Info("Sent C-CANCEL", "association", a.String(), "message_id", msgID)
			}
		default:
			return err
		}
	}
}
