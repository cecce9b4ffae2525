package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/dicom"
	"github.com/caio-sobreiro/dicomul/types"
)

// Sink receives the objects accepted by a StoreService.
type Sink interface {
	Store(ctx context.Context, meta dicom.FileMeta, dataset []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, meta dicom.FileMeta, dataset []byte) error

// Store calls f.
func (f SinkFunc) Store(ctx context.Context, meta dicom.FileMeta, dataset []byte) error {
	return f(ctx, meta, dataset)
}

// StoreService is a C-STORE SCP handing every received object to a Sink.
type StoreService struct {
	sink Sink
}

// NewStoreService creates a C-STORE service storing into sink.
func NewStoreService(sink Sink) *StoreService {
	return &StoreService{sink: sink}
}

// HandleDIMSE stores the data set of a C-STORE-RQ and answers with the
// outcome.
func (s *StoreService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	builder := NewResponseBuilder(msg)
	logger := slog.Default().With(
		"message_id", msg.MessageID,
		"sop_class", msg.AffectedSOPClassUID,
		"sop_instance", msg.AffectedSOPInstanceUID)

	if msg.AffectedSOPInstanceUID == "" || len(data) == 0 {
		logger.WarnContext(ctx, "C-STORE request without instance or data set")
		return builder.CStoreResponse(types.StatusUnableToProcess, ""), nil, nil
	}

	meta := dicom.FileMeta{
		MediaStorageSOPClassUID:    msg.AffectedSOPClassUID,
		MediaStorageSOPInstanceUID: msg.AffectedSOPInstanceUID,
		TransferSyntaxUID:          types.ImplicitVRLittleEndian,
		ImplementationClassUID:     association.ImplementationClassUID,
		ImplementationVersionName:  association.ImplementationVersionName,
	}
	if pc, ok := association.RequestPresentationContext(ctx); ok {
		meta.TransferSyntaxUID = pc.TransferSyntax
	}
	if as, ok := association.FromContext(ctx); ok {
		meta.SourceAETitle = as.RemoteAET()
		logger = logger.With("association", as.String())
	}

	if err := s.sink.Store(ctx, meta, data); err != nil {
		logger.ErrorContext(ctx, "Failed to store object", "error", err)
		return builder.CStoreResponse(types.StatusOutOfResources, ""), nil, nil
	}

	logger.InfoContext(ctx, "Stored object", "bytes", len(data), "transfer_syntax", meta.TransferSyntaxUID)
	return builder.CStoreResponse(types.StatusSuccess, ""), nil, nil
}

// DirSink writes each object as a Part 10 file named after its SOP
// instance UID.
type DirSink struct {
	Dir string
}

// Path returns the file an instance is stored in.
func (d DirSink) Path(sopInstanceUID string) string {
	name := strings.Map(func(r rune) rune {
		if r == '.' || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, sopInstanceUID)
	return filepath.Join(d.Dir, name+".dcm")
}

// Store writes the object to a temporary file and renames it into place.
func (d DirSink) Store(ctx context.Context, meta dicom.FileMeta, dataset []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(d.Dir, ".incoming-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := dicom.WritePart10(tmp, meta, dataset); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", meta.MediaStorageSOPInstanceUID, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.Path(meta.MediaStorageSOPInstanceUID))
}
