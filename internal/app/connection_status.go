package app

import (
	"net"
	"strconv"
	"strings"

	"github.com/skobkin/zwavelink/internal/config"
	"github.com/skobkin/zwavelink/internal/connectors"
)

func TransportNameFromConnector(connector config.ConnectorType) string {
	switch connector {
	case config.ConnectorIP:
		return "ip"
	case config.ConnectorSerial:
		return "serial"
	default:
		if value := strings.TrimSpace(string(connector)); value != "" {
			return value
		}
		return "unknown"
	}
}

func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorIP:
		host := strings.TrimSpace(cfg.Host)
		if host == "" {
			return ""
		}
		return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	default:
		return ""
	}
}

// ConnectionStatusFromConfig is the status shown before the radio reports anything.
func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnStatus {
	status := connectors.ConnStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: TransportNameFromConnector(cfg.Connector),
		Target:        ConnectionTarget(cfg),
	}
	if status.Target != "" {
		status.State = connectors.ConnectionStateConnecting
	}

	return status
}
