// Package server accepts DICOM transport connections and hands each one to
// an association.Device acting as association acceptor.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/interfaces"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server and its associations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithConfig sets the association configuration of accepted connections.
func WithConfig(cfg association.Config) Option {
	return func(s *Server) {
		s.Config = cfg
	}
}

// WithNegotiator sets the policy answering association requests.
func WithNegotiator(n association.Negotiator) Option {
	return func(s *Server) {
		s.Negotiator = n
	}
}

// WithApplicationEntity serves an additional AE on the same listener.
func WithApplicationEntity(ae *association.ApplicationEntity) Option {
	return func(s *Server) {
		s.extra = append(s.extra, ae)
	}
}

// Server exposes a reusable DICOM listener. Requests for AE titles other
// than the registered ones are rejected.
type Server struct {
	AETitle    string
	Handler    interfaces.ServiceHandler
	Logger     *slog.Logger
	Config     association.Config
	Negotiator association.Negotiator

	extra []*association.ApplicationEntity

	mu     sync.Mutex
	device *association.Device
}

// New builds a Server with the provided AE title and handler.
func New(aeTitle string, handler interfaces.ServiceHandler, opts ...Option) *Server {
	srv := &Server{AETitle: aeTitle, Handler: handler, Config: association.DefaultConfig()}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on the given address and serves until the context
// is done or an error occurs.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler interfaces.ServiceHandler, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	srv := New(aeTitle, handler, opts...)
	return srv.Serve(ctx, listener)
}

// Device returns the device of a running server, or nil before Serve.
func (s *Server) Device() *association.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Server) setup() error {
	if s.Handler == nil {
		return errors.New("dicomserver: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}
	if err := s.Config.Validate(); err != nil {
		return err
	}

	device := association.NewDevice(s.AETitle, s.Config, s.logger())
	ae := association.NewApplicationEntity(s.AETitle, s.Handler)
	ae.Negotiator = s.Negotiator
	device.AddApplicationEntity(ae)
	for _, extra := range s.extra {
		device.AddApplicationEntity(extra)
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	return nil
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs. Associations still open when it returns are
// aborted.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if s == nil {
		return errors.New("dicomserver: server is nil")
	}
	if err := s.setup(); err != nil {
		return err
	}

	logger := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info("DICOM server listening",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle)

	var serveErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn("Accept timeout", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			serveErr = err
			break
		}

		logger.Debug("Accepted DICOM connection", "remote_addr", conn.RemoteAddr())
		s.Device().Accept(conn)
	}

	s.Shutdown()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// Shutdown aborts the open associations and waits for their goroutines.
func (s *Server) Shutdown() {
	device := s.Device()
	if device == nil {
		return
	}
	if n := device.OpenAssociations(); n > 0 {
		s.logger().Info("Aborting open associations", "count", n)
	}
	device.AbortAll()
	device.Wait()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
