package app

import (
	"testing"

	"github.com/skobkin/zwavelink/internal/config"
	"github.com/skobkin/zwavelink/internal/transport"
)

func TestNewTransportForConnection(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.ConnectionConfig
		want       string
		wantTarget string
		wantErr    bool
	}{
		{
			name:       "ip",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorIP, Host: "127.0.0.1", Port: 5000},
			want:       "ip",
			wantTarget: "127.0.0.1:5000",
		},
		{
			name:       "ip default port",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorIP, Host: "127.0.0.1"},
			want:       "ip",
			wantTarget: "127.0.0.1:4901",
		},
		{
			name:       "serial",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0", SerialBaud: 115200},
			want:       "serial",
			wantTarget: "/dev/ttyACM0",
		},
		{
			name:    "unknown",
			cfg:     config.ConnectionConfig{Connector: "bluetooth"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := NewTransportForConnection(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Name() != tc.want {
				t.Fatalf("expected transport %q, got %q", tc.want, tr.Name())
			}
			resolver, ok := tr.(transport.StatusTargetResolver)
			if !ok {
				t.Fatalf("transport %T does not report a target", tr)
			}
			if got := resolver.StatusTarget(); got != tc.wantTarget {
				t.Fatalf("target = %q, want %q", got, tc.wantTarget)
			}
		})
	}
}
