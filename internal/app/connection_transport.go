package app

import (
	"fmt"

	"github.com/skobkin/zwavelink/internal/config"
	"github.com/skobkin/zwavelink/internal/transport"
)

// NewTransportForConnection builds the host link described by cfg.
func NewTransportForConnection(cfg config.ConnectionConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorIP:
		return transport.NewIPTransport(cfg.Host, cfg.Port), nil
	case config.ConnectorSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}
