package app

import (
	"testing"

	"github.com/skobkin/zwavelink/internal/config"
	"github.com/skobkin/zwavelink/internal/connectors"
)

func TestTransportNameFromConnector(t *testing.T) {
	tests := []struct {
		name      string
		connector config.ConnectorType
		want      string
	}{
		{name: "ip", connector: config.ConnectorIP, want: "ip"},
		{name: "serial", connector: config.ConnectorSerial, want: "serial"},
		{name: "custom", connector: config.ConnectorType(" usb "), want: "usb"},
		{name: "empty", connector: "", want: "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TransportNameFromConnector(tc.connector); got != tc.want {
				t.Fatalf("TransportNameFromConnector() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConnectionStatusFromConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.ConnectionConfig
		wantState  connectors.ConnectionState
		wantTarget string
	}{
		{
			name:       "ip with host",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorIP, Host: "10.0.0.2", Port: 4901},
			wantState:  connectors.ConnectionStateConnecting,
			wantTarget: "10.0.0.2:4901",
		},
		{
			name:       "serial with port",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: " /dev/ttyACM0 "},
			wantState:  connectors.ConnectionStateConnecting,
			wantTarget: "/dev/ttyACM0",
		},
		{
			name:      "ip without host",
			cfg:       config.ConnectionConfig{Connector: config.ConnectorIP},
			wantState: connectors.ConnectionStateDisconnected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status := ConnectionStatusFromConfig(tc.cfg)
			if status.State != tc.wantState || status.Target != tc.wantTarget {
				t.Fatalf("unexpected status: %+v", status)
			}
		})
	}
}
