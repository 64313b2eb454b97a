package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/transfer"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Connector != ConnectorSerial {
		t.Fatalf("expected default connector %q, got %q", ConnectorSerial, cfg.Connection.Connector)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Connection.SerialBaud)
	}
	if cfg.Connection.Port != DefaultIPPort {
		t.Fatalf("expected default ip port %d, got %d", DefaultIPPort, cfg.Connection.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Network.HomeID != DefaultHomeID || cfg.Network.NodeID != 1 || cfg.Network.Role != RoleController {
		t.Fatalf("unexpected network defaults: %+v", cfg.Network)
	}
	if cfg.Radio.Region != "EU" {
		t.Fatalf("expected default region EU, got %q", cfg.Radio.Region)
	}
	if cfg.Transfer.PoolSize != transfer.DefaultPoolSize || cfg.Transfer.Retries != transfer.DefaultRetries {
		t.Fatalf("unexpected transfer defaults: %+v", cfg.Transfer)
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("expected metrics disabled by default")
	}
	if cfg.Metrics.Listen != DefaultMetricsListen || cfg.Metrics.SnapshotIntervalSeconds <= 0 || cfg.Metrics.SnapshotKeep <= 0 {
		t.Fatalf("unexpected metrics defaults: %+v", cfg.Metrics)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadPartialFileKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {
    "connector": "ip",
    "host": "10.0.0.5"
  },
  "network": {
    "home_id": "0xDEADBEEF",
    "node_id": 260,
    "lr_locked": true
  },
  "radio": {
    "region": "us_lr",
    "lr_channel_config": 3
  },
  "transfer": {
    "use_lbt": true,
    "direct_ack_timeout_ms": 90
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Port != DefaultIPPort {
		t.Fatalf("expected default port, got %d", cfg.Connection.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	dl, err := cfg.Network.Datalink()
	if err != nil {
		t.Fatalf("datalink config: %v", err)
	}
	if dl.HomeID != (frame.HomeID{0xDE, 0xAD, 0xBE, 0xEF}) || dl.NodeID != 260 || dl.Role != datalink.RoleController || !dl.LRLocked {
		t.Fatalf("unexpected datalink config: %+v", dl)
	}

	region, lr, err := cfg.Radio.Parse()
	if err != nil {
		t.Fatalf("radio config: %v", err)
	}
	if region != datalink.RegionUSLR || lr != datalink.LRChannelConfig3 {
		t.Fatalf("unexpected radio config: %s %d", region, lr)
	}

	opts := cfg.Transfer.Options()
	if !opts.UseLBT || opts.Timeouts.Direct != 90*time.Millisecond || opts.Timeouts.PerHop != 0 {
		t.Fatalf("unexpected transfer options: %+v", opts)
	}
}

func TestLoadAcceptsCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  // bridge in the attic
  "connection": {
    "connector": "ip",
    "host": "10.0.0.7",
    "port": 5001,
  },
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Host != "10.0.0.7" || cfg.Connection.Port != 5001 {
		t.Fatalf("unexpected connection %+v", cfg.Connection)
	}
	if cfg.Radio.Region != Default().Radio.Region {
		t.Fatalf("expected default region, got %q", cfg.Radio.Region)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAppConfigValidate(t *testing.T) {
	valid := func(mutate func(*AppConfig)) AppConfig {
		cfg := Default()
		cfg.Connection.SerialPort = "/dev/ttyACM0"
		mutate(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     AppConfig
		wantErr bool
	}{
		{name: "valid serial", cfg: valid(func(*AppConfig) {})},
		{name: "valid ip", cfg: valid(func(c *AppConfig) {
			c.Connection.Connector = ConnectorIP
			c.Connection.Host = "192.168.1.10"
		})},
		{name: "ip without host", cfg: valid(func(c *AppConfig) {
			c.Connection.Connector = ConnectorIP
		}), wantErr: true},
		{name: "ip port out of range", cfg: valid(func(c *AppConfig) {
			c.Connection.Connector = ConnectorIP
			c.Connection.Host = "radio.local"
			c.Connection.Port = 70000
		}), wantErr: true},
		{name: "serial without port", cfg: valid(func(c *AppConfig) {
			c.Connection.SerialPort = ""
		}), wantErr: true},
		{name: "serial with non-positive baud", cfg: valid(func(c *AppConfig) {
			c.Connection.SerialBaud = 0
		}), wantErr: true},
		{name: "unknown connector", cfg: valid(func(c *AppConfig) {
			c.Connection.Connector = ConnectorType("bluetooth")
		}), wantErr: true},
		{name: "bad home id", cfg: valid(func(c *AppConfig) {
			c.Network.HomeID = "xyz"
		}), wantErr: true},
		{name: "node id in reserved range", cfg: valid(func(c *AppConfig) {
			c.Network.NodeID = 240
		}), wantErr: true},
		{name: "end device role", cfg: valid(func(c *AppConfig) {
			c.Network.Role = RoleEndDevice
		})},
		{name: "unknown role", cfg: valid(func(c *AppConfig) {
			c.Network.Role = "repeater"
		}), wantErr: true},
		{name: "unknown region", cfg: valid(func(c *AppConfig) {
			c.Radio.Region = "MARS"
		}), wantErr: true},
		{name: "lr channels on classic region", cfg: valid(func(c *AppConfig) {
			c.Radio.LRChannelConfig = 1
		}), wantErr: true},
		{name: "too many retries", cfg: valid(func(c *AppConfig) {
			c.Transfer.Retries = 20
		}), wantErr: true},
		{name: "metrics without listen address", cfg: valid(func(c *AppConfig) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = " "
		}), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Connection.SerialPort = "/dev/ttyUSB0"
	cfg.Metrics.Enabled = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Default()); err == nil {
		t.Fatalf("expected validation error for default config without serial port")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config was written")
	}
}
