package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomul/association"
	"github.com/caio-sobreiro/dicomul/client"
	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/services"
	"github.com/caio-sobreiro/dicomul/types"
)

func testConfig() association.Config {
	cfg := association.DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.AcceptTimeout = 2 * time.Second
	cfg.ReleaseTimeout = 2 * time.Second
	cfg.DimseRSPTimeout = 2 * time.Second
	cfg.SocketCloseDelay = 10 * time.Millisecond
	return cfg
}

func echoRegistry() *services.Registry {
	registry := services.NewRegistry()
	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService())
	return registry
}

// startServer serves on a loopback port until the test ends.
func startServer(t *testing.T, srv *Server) (string, <-chan error) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return srv.Device() != nil }, time.Second, 5*time.Millisecond)
	return listener.Addr().String(), done
}

func dial(t *testing.T, address, called string) (*client.Association, error) {
	t.Helper()
	cfg := testConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Connect(ctx, address, client.Config{
		CallingAETitle:   "SCU",
		CalledAETitle:    called,
		AbstractSyntaxes: []string{types.VerificationSOPClass},
		Association:      &cfg,
	})
}

func TestServeEcho(t *testing.T) {
	srv := New("SCP", echoRegistry(), WithConfig(testConfig()))
	address, _ := startServer(t, srv)

	assoc, err := dial(t, address, "SCP")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rsp, err := assoc.SendCEcho(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.StatusSuccess), rsp.Status)
	assert.Equal(t, 1, srv.Device().OpenAssociations())

	require.NoError(t, assoc.Close(ctx))
	require.Eventually(t, func() bool { return srv.Device().OpenAssociations() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeRejectsUnknownAE(t *testing.T) {
	extra := association.NewApplicationEntity("OTHER", echoRegistry())
	srv := New("SCP", echoRegistry(), WithConfig(testConfig()), WithApplicationEntity(extra))
	address, _ := startServer(t, srv)

	_, err := dial(t, address, "NOBODY")
	var rejected *dicomerrors.AssociationError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, dicomerrors.RejectReasonCalledAETitleNotRecognized, rejected.Reason)

	assoc, err := dial(t, address, "OTHER")
	require.NoError(t, err)
	assert.Equal(t, "OTHER", assoc.CalledAET())
	assoc.Abort()
}

func TestServeNegotiator(t *testing.T) {
	rejectAll := association.NegotiatorFunc(func(a *association.Association, rq *pdu.AssociateRQ) (*pdu.AssociateAC, error) {
		return nil, dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser,
			dicomerrors.RejectReasonNoReasonGiven, "maintenance")
	})
	srv := New("SCP", echoRegistry(), WithConfig(testConfig()), WithNegotiator(rejectAll))
	address, _ := startServer(t, srv)

	_, err := dial(t, address, "SCP")
	assert.ErrorIs(t, err, dicomerrors.ErrAssociationRejected)
}

func TestShutdownAbortsAssociations(t *testing.T) {
	srv := New("SCP", echoRegistry(), WithConfig(testConfig()))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()
	require.Eventually(t, func() bool { return srv.Device() != nil }, time.Second, 5*time.Millisecond)

	assoc, err := dial(t, listener.Addr().String(), "SCP")
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, srv.Device().OpenAssociations())

	select {
	case <-assoc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client association still open after shutdown")
	}
	var aborted *dicomerrors.AbortError
	assert.ErrorAs(t, assoc.Err(), &aborted)
}

func TestServeValidation(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	tests := []struct {
		name string
		srv  *Server
	}{
		{name: "no handler", srv: New("SCP", nil)},
		{name: "no AE title", srv: New("", echoRegistry())},
		{name: "invalid config", srv: New("SCP", echoRegistry(), WithConfig(association.Config{MaxPDULengthReceive: 10}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.srv.Serve(context.Background(), listener))
		})
	}

	var nilServer *Server
	assert.Error(t, nilServer.Serve(context.Background(), listener))
	assert.Error(t, New("SCP", echoRegistry()).Serve(context.Background(), nil))
}
