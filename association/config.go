package association

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/caio-sobreiro/dicomul/types"
)

// Implementation identification sent in the user information item.
const (
	ImplementationClassUID    = "1.2.826.0.1.3680043.9.7433.1.1"
	ImplementationVersionName = "DICOMUL_1"
)

// Config holds the connection-level settings of a Device. Zero durations
// disable the corresponding timer. Values can be loaded from the
// environment with ConfigFromEnv.
type Config struct {
	// RequestTimeout bounds the wait for A-ASSOCIATE-RQ after accepting a connection.
	RequestTimeout time.Duration `env:"DICOMUL_REQUEST_TIMEOUT,default=10s"`
	// AcceptTimeout bounds the wait for A-ASSOCIATE-AC/RJ after sending the request.
	AcceptTimeout time.Duration `env:"DICOMUL_ACCEPT_TIMEOUT,default=10s"`
	// ReleaseTimeout bounds the wait for A-RELEASE-RP.
	ReleaseTimeout time.Duration `env:"DICOMUL_RELEASE_TIMEOUT,default=10s"`
	// DimseRSPTimeout is the default per-operation response timeout.
	DimseRSPTimeout time.Duration `env:"DICOMUL_DIMSE_RSP_TIMEOUT,default=60s"`
	// CGetRSPTimeout replaces DimseRSPTimeout after a pending C-GET-RSP.
	CGetRSPTimeout time.Duration `env:"DICOMUL_CGET_RSP_TIMEOUT,default=10m"`
	// CMoveRSPTimeout replaces DimseRSPTimeout after a pending C-MOVE-RSP.
	CMoveRSPTimeout time.Duration `env:"DICOMUL_CMOVE_RSP_TIMEOUT,default=10m"`
	// ConnectTimeout bounds establishing the transport connection.
	ConnectTimeout time.Duration `env:"DICOMUL_CONNECT_TIMEOUT,default=30s"`
	// WriteTimeout bounds each PDU write.
	WriteTimeout time.Duration `env:"DICOMUL_WRITE_TIMEOUT,default=60s"`
	// SocketCloseDelay lets the peer read a final A-ABORT, A-ASSOCIATE-RJ or
	// A-RELEASE-RP before the connection drops.
	SocketCloseDelay time.Duration `env:"DICOMUL_SOCKET_CLOSE_DELAY,default=50ms"`

	// MaxPDULengthReceive is advertised to the peer; 0 means unlimited.
	MaxPDULengthReceive uint32 `env:"DICOMUL_MAX_PDU_LENGTH_RECEIVE,default=16384"`
	// MaxPDULengthSend caps outgoing PDUs in addition to the peer's limit; 0 means unlimited.
	MaxPDULengthSend uint32 `env:"DICOMUL_MAX_PDU_LENGTH_SEND,default=16384"`
	// MaxOpsInvoked is the number of outstanding requests proposed; 0 means unlimited.
	MaxOpsInvoked uint16 `env:"DICOMUL_MAX_OPS_INVOKED,default=1"`
	// MaxOpsPerformed is the number of requests the local AE will perform concurrently.
	MaxOpsPerformed uint16 `env:"DICOMUL_MAX_OPS_PERFORMED,default=1"`

	// AllowAcceptorRelease lets the association acceptor start an orderly
	// release, which makes release collisions possible on both sides.
	AllowAcceptorRelease bool `env:"DICOMUL_ALLOW_ACCEPTOR_RELEASE,default=false"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:      10 * time.Second,
		AcceptTimeout:       10 * time.Second,
		ReleaseTimeout:      10 * time.Second,
		DimseRSPTimeout:     60 * time.Second,
		CGetRSPTimeout:      10 * time.Minute,
		CMoveRSPTimeout:     10 * time.Minute,
		ConnectTimeout:      30 * time.Second,
		WriteTimeout:        60 * time.Second,
		SocketCloseDelay:    50 * time.Millisecond,
		MaxPDULengthReceive: 16384,
		MaxPDULengthSend:    16384,
		MaxOpsInvoked:       1,
		MaxOpsPerformed:     1,
	}
}

// ConfigFromEnv overlays DICOMUL_* environment variables on DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("load association config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the protocol cannot honour.
func (c Config) Validate() error {
	if c.MaxPDULengthReceive != 0 && c.MaxPDULengthReceive < minPDULength {
		return fmt.Errorf("max receive PDU length %d below minimum %d", c.MaxPDULengthReceive, minPDULength)
	}
	if c.MaxPDULengthSend != 0 && c.MaxPDULengthSend < minPDULength {
		return fmt.Errorf("max send PDU length %d below minimum %d", c.MaxPDULengthSend, minPDULength)
	}
	return nil
}

// minPDULength leaves room for a PDV header and at least a few payload bytes.
const minPDULength = 64

// responseTimeout returns the deadline extension granted after a response
// with the given command field. Requests get DimseRSPTimeout.
func (c Config) responseTimeout(commandField uint16) time.Duration {
	switch commandField {
	case types.CGetRSP:
		return c.CGetRSPTimeout
	case types.CMoveRSP:
		return c.CMoveRSPTimeout
	default:
		return c.DimseRSPTimeout
	}
}

// minZeroAsMax returns the smaller of a and b, treating 0 as unlimited.
func minZeroAsMax[T ~uint16 | ~uint32](a, b T) T {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
