package association

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/caio-sobreiro/dicomul/interfaces"
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/types"
)

// Device groups the application entities of one process, runs the
// goroutines of their associations and keeps track of open associations.
type Device struct {
	name    string
	cfg     Config
	logger  *slog.Logger
	metrics *associationMetrics

	mu   sync.RWMutex
	aes  map[string]*ApplicationEntity
	open map[*Association]struct{}
	wg   sync.WaitGroup
}

// NewDevice creates a device. A nil logger means slog.Default().
func NewDevice(name string, cfg Config, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		name:    name,
		cfg:     cfg,
		logger:  logger,
		metrics: globalAssociationMetrics(),
		aes:     make(map[string]*ApplicationEntity),
		open:    make(map[*Association]struct{}),
	}
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Config returns the configuration shared by the device's associations.
func (d *Device) Config() Config {
	return d.cfg
}

// Logger returns the device logger.
func (d *Device) Logger() *slog.Logger {
	return d.logger
}

// AddApplicationEntity registers ae under its AE title.
func (d *Device) AddApplicationEntity(ae *ApplicationEntity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ae.device = d
	d.aes[ae.AETitle] = ae
}

// ApplicationEntity returns the AE registered under aet, or nil.
func (d *Device) ApplicationEntity(aet string) *ApplicationEntity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.aes[aet]
}

// Execute runs fn on a new goroutine tracked by Wait.
func (d *Device) Execute(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine started through Execute has returned.
func (d *Device) Wait() {
	d.wg.Wait()
}

func (d *Device) opened(a *Association) {
	d.mu.Lock()
	d.open[a] = struct{}{}
	d.mu.Unlock()
	d.metrics.opened()
}

func (d *Device) closed(a *Association) {
	d.mu.Lock()
	delete(d.open, a)
	d.mu.Unlock()
	d.metrics.closed(a.isInitiator, a.Err(), a.started)
}

// OpenAssociations returns the number of associations whose reader is running.
func (d *Device) OpenAssociations() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.open)
}

// AbortAll aborts every open association.
func (d *Device) AbortAll() {
	d.mu.RLock()
	open := make([]*Association, 0, len(d.open))
	for a := range d.open {
		open = append(open, a)
	}
	d.mu.RUnlock()

	for _, a := range open {
		a.Abort()
	}
}

// Accept starts the acceptor side of an association on conn. The
// association waits for an A-ASSOCIATE-RQ for at most RequestTimeout.
func (d *Device) Accept(conn net.Conn) *Association {
	a := newAssociation(d, nil, conn, false, Sta2)
	a.log().Debug("transport connection accepted", "remote_addr", conn.RemoteAddr())
	a.artim.start(d.cfg.RequestTimeout)
	a.activate()
	return a
}

// ApplicationEntity is a local DICOM application entity.
type ApplicationEntity struct {
	AETitle string
	// Handler performs incoming DIMSE requests. Nil answers every request
	// with an unrecognized operation status.
	Handler interfaces.ServiceHandler
	// Negotiator answers association requests. Nil means DefaultNegotiator.
	Negotiator Negotiator

	device *Device
}

// NewApplicationEntity creates an AE that performs requests with handler.
func NewApplicationEntity(aeTitle string, handler interfaces.ServiceHandler) *ApplicationEntity {
	return &ApplicationEntity{AETitle: aeTitle, Handler: handler}
}

// Device returns the device the AE was added to, or nil.
func (ae *ApplicationEntity) Device() *Device {
	return ae.device
}

func (ae *ApplicationEntity) negotiator() Negotiator {
	if ae.Negotiator != nil {
		return ae.Negotiator
	}
	return DefaultNegotiator{}
}

// Connect requests an association over an established transport
// connection. Empty fields of rq are filled from the device configuration.
// On failure the connection is closed and the error is an
// *errors.AssociationError, *errors.AbortError, *errors.TimeoutError or
// *errors.NetworkError.
func (ae *ApplicationEntity) Connect(ctx context.Context, conn net.Conn, rq *pdu.AssociateRQ) (*Association, error) {
	d := ae.device
	if d == nil {
		return nil, fmt.Errorf("application entity %s is not part of a device", ae.AETitle)
	}
	a := newAssociation(d, ae, conn, true, Sta4)
	prepareAssociateRQ(rq, ae.AETitle, d.cfg)

	a.mu.Lock()
	a.rq = rq
	a.renameLocked(fmt.Sprintf("%s-%d", rq.CalledAETitle, a.serial))
	a.mu.Unlock()

	a.writeMu.Lock()
	a.transit(Sta4, Sta5)
	a.artim.start(d.cfg.AcceptTimeout)
	err := a.send(rq)
	a.writeMu.Unlock()
	if err != nil {
		a.setError(err)
		a.closeTransport()
		return nil, err
	}
	a.log().Info("association requested",
		"calling_ae", rq.CallingAETitle,
		"called_ae", rq.CalledAETitle,
		"presentation_contexts", len(rq.PresentationContexts))
	a.activate()

	if err := a.WaitForLeaving(ctx, Sta5); err != nil {
		if ctx.Err() != nil {
			a.Abort()
		}
		return nil, err
	}
	if s := a.State(); s != Sta6 {
		<-a.done
		if err := a.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("association closed in %s", s)
	}
	return a, nil
}

// prepareAssociateRQ fills the fields left empty by the caller.
func prepareAssociateRQ(rq *pdu.AssociateRQ, callingAET string, cfg Config) {
	if rq.ProtocolVersion == 0 {
		rq.ProtocolVersion = pdu.ProtocolVersion
	}
	if rq.CallingAETitle == "" {
		rq.CallingAETitle = callingAET
	}
	if rq.ApplicationContext == "" {
		rq.ApplicationContext = types.ApplicationContextUID
	}
	if rq.MaxPDULength == 0 {
		rq.MaxPDULength = cfg.MaxPDULengthReceive
	}
	if rq.ImplementationClassUID == "" {
		rq.ImplementationClassUID = ImplementationClassUID
		rq.ImplementationVersionName = ImplementationVersionName
	}
	if rq.MaxOpsInvoked == 0 && rq.MaxOpsPerformed == 0 {
		rq.MaxOpsInvoked = cfg.MaxOpsInvoked
		rq.MaxOpsPerformed = cfg.MaxOpsPerformed
	}
}
