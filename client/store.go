package client

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/types"
)

// CStoreRequest represents a C-STORE request. TransferSyntaxUID is the
// encoding of Data; empty means any context accepted for the SOP class.
type CStoreRequest struct {
	SOPClassUID       string
	SOPInstanceUID    string
	TransferSyntaxUID string
	Priority          uint16
	Data              []byte
}

// CStoreResponse represents a C-STORE response.
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
}

// SendCStore sends a C-STORE request and waits for its response. A failure
// status is returned as a *errors.DIMSEError together with the response.
func (a *Association) SendCStore(ctx context.Context, req *CStoreRequest) (*CStoreResponse, error) {
	if req == nil {
		return nil, errors.New("c-store request cannot be nil")
	}
	if req.SOPClassUID == "" || req.SOPInstanceUID == "" {
		return nil, errors.New("c-store request requires SOP class and instance UIDs")
	}

	pc, err := a.PresentationContextFor(req.SOPClassUID)
	if req.TransferSyntaxUID != "" {
		pc, err = a.PresentationContextForTransfer(req.SOPClassUID, req.TransferSyntaxUID)
	}
	if err != nil {
		return nil, fmt.Errorf("no presentation context for SOP class %s: %w", req.SOPClassUID, err)
	}
	if !a.IsSCUFor(req.SOPClassUID) {
		return nil, &dicomerrors.NoRoleSelectionError{SOPClassUID: req.SOPClassUID, Role: "SCU"}
	}

	msg := &types.Message{
		CommandField:           types.CStoreRQ,
		Priority:               req.Priority,
		CommandDataSetType:     types.DataSetPresent,
		AffectedSOPClassUID:    req.SOPClassUID,
		AffectedSOPInstanceUID: req.SOPInstanceUID,
	}
	f := association.NewFutureResponse()
	if _, err := a.Invoke(ctx, pc, msg, req.Data, f); err != nil {
		return nil, fmt.Errorf("send C-STORE: %w", err)
	}
	a.logger.Debug("Sent C-STORE-RQ",
		"sop_class", req.SOPClassUID,
		"sop_instance", req.SOPInstanceUID,
		"data_size", len(req.Data))

	rsp, err := f.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive C-STORE-RSP: %w", err)
	}
	return &CStoreResponse{
		Status:         rsp.Message.Status,
		MessageID:      rsp.Message.MessageIDBeingRespondedTo,
		SOPClassUID:    rsp.Message.AffectedSOPClassUID,
		SOPInstanceUID: rsp.Message.AffectedSOPInstanceUID,
	}, dicomerrors.StatusError("C-STORE", rsp.Message.Status)
}

// StoreFile sends the data set of a Part 10 file, on the context matching
// its transfer syntax.
func (a *Association) StoreFile(ctx context.Context, path string) (*CStoreResponse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := dicom.ReadPart10(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a.SendCStore(ctx, &CStoreRequest{
		SOPClassUID:       f.Meta.MediaStorageSOPClassUID,
		SOPInstanceUID:    f.Meta.MediaStorageSOPInstanceUID,
		TransferSyntaxUID: f.Meta.TransferSyntaxUID,
		Data:              f.Dataset,
	})
}
