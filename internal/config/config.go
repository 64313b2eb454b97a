package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flynn/json5"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/frame"
	"github.com/skobkin/zwavelink/internal/transfer"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorIP     ConnectorType = "ip"
	ConnectorSerial ConnectorType = "serial"

	DefaultSerialBaud = 115200
	DefaultIPPort     = 4901

	RoleController = "controller"
	RoleEndDevice  = "end_device"

	DefaultHomeID        = "C0000001"
	DefaultMetricsListen = "127.0.0.1:9464"

	defaultSnapshotInterval = 60
	defaultSnapshotKeep     = 1440
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector  ConnectorType `json:"connector"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	SerialPort string        `json:"serial_port"`
	SerialBaud int           `json:"serial_baud"`
}

// NetworkConfig is the identity of the local node.
type NetworkConfig struct {
	HomeID   string `json:"home_id"`
	NodeID   int    `json:"node_id"`
	Role     string `json:"role"`
	LRLocked bool   `json:"lr_locked"`
}

type RadioConfig struct {
	Region          string `json:"region"`
	LRChannelConfig int    `json:"lr_channel_config"`
}

// TransferConfig tunes the transport layer. Zero timeouts use the built-in values.
type TransferConfig struct {
	PoolSize           int  `json:"pool_size"`
	Retries            int  `json:"retries"`
	UseLBT             bool `json:"use_lbt"`
	DirectAckTimeoutMs int  `json:"direct_ack_timeout_ms"`
	Direct9600AckMs    int  `json:"direct_9600_ack_timeout_ms"`
	PerHopAckMs        int  `json:"per_hop_ack_ms"`
	ExploreAckMs       int  `json:"explore_ack_timeout_ms"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
	// SnapshotIntervalSeconds is how often counters are stored in the database.
	SnapshotIntervalSeconds int `json:"snapshot_interval_seconds"`
	SnapshotKeep            int `json:"snapshot_keep"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Logging    LoggingConfig    `json:"logging"`
	Network    NetworkConfig    `json:"network"`
	Radio      RadioConfig      `json:"radio"`
	Transfer   TransferConfig   `json:"transfer"`
	Metrics    MetricsConfig    `json:"metrics"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorSerial,
			Port:       DefaultIPPort,
			SerialBaud: DefaultSerialBaud,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Network: NetworkConfig{
			HomeID: DefaultHomeID,
			NodeID: 1,
			Role:   RoleController,
		},
		Radio: RadioConfig{
			Region: "EU",
		},
		Transfer: TransferConfig{
			PoolSize: transfer.DefaultPoolSize,
			Retries:  transfer.DefaultRetries,
		},
		Metrics: MetricsConfig{
			Listen:                  DefaultMetricsListen,
			SnapshotIntervalSeconds: defaultSnapshotInterval,
			SnapshotKeep:            defaultSnapshotKeep,
		},
	}
}

// Load reads the config file at path. The file may use JSON5 (comments,
// trailing commas); a missing file yields Default().
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	def := Default()
	if c.Connection.Connector == "" {
		c.Connection.Connector = def.Connection.Connector
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultIPPort
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Network.HomeID == "" {
		c.Network.HomeID = DefaultHomeID
	}
	if c.Network.NodeID == 0 {
		c.Network.NodeID = def.Network.NodeID
	}
	if c.Network.Role == "" {
		c.Network.Role = RoleController
	}
	if c.Radio.Region == "" {
		c.Radio.Region = def.Radio.Region
	}
	if c.Transfer.PoolSize <= 0 {
		c.Transfer.PoolSize = transfer.DefaultPoolSize
	}
	if c.Transfer.Retries <= 0 {
		c.Transfer.Retries = transfer.DefaultRetries
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Metrics.SnapshotIntervalSeconds <= 0 {
		c.Metrics.SnapshotIntervalSeconds = defaultSnapshotInterval
	}
	if c.Metrics.SnapshotKeep <= 0 {
		c.Metrics.SnapshotKeep = defaultSnapshotKeep
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("ip host is required")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("ip port %d out of range", c.Connection.Port)
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	if _, err := c.Network.Datalink(); err != nil {
		return err
	}
	if _, _, err := c.Radio.Parse(); err != nil {
		return err
	}
	if c.Transfer.Retries > 8 {
		return fmt.Errorf("transfer retries %d exceeds 8", c.Transfer.Retries)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return errors.New("metrics listen address is required")
	}

	return nil
}

// Datalink converts the network identity into the data link layer config.
func (n NetworkConfig) Datalink() (datalink.Config, error) {
	homeID, err := frame.ParseHomeID(n.HomeID)
	if err != nil {
		return datalink.Config{}, fmt.Errorf("network home id: %w", err)
	}
	nodeID := frame.NodeID(n.NodeID)
	if n.NodeID <= 0 || n.NodeID > 0xFFFF || !domain.ValidNodeID(nodeID) {
		return datalink.Config{}, fmt.Errorf("network node id %d out of range", n.NodeID)
	}

	cfg := datalink.Config{HomeID: homeID, NodeID: nodeID, LRLocked: n.LRLocked}
	switch strings.ToLower(strings.TrimSpace(n.Role)) {
	case RoleController:
		cfg.Role = datalink.RoleController
	case RoleEndDevice:
		cfg.Role = datalink.RoleEndDevice
	default:
		return datalink.Config{}, fmt.Errorf("unknown network role: %q", n.Role)
	}

	return cfg, nil
}

func (r RadioConfig) Parse() (datalink.Region, datalink.LRChannelConfig, error) {
	region, err := datalink.ParseRegion(r.Region)
	if err != nil {
		return 0, 0, fmt.Errorf("radio region: %w", err)
	}
	if r.LRChannelConfig < int(datalink.LRChannelNone) || r.LRChannelConfig > int(datalink.LRChannelConfig3) {
		return 0, 0, fmt.Errorf("radio lr channel config %d out of range", r.LRChannelConfig)
	}
	lr := datalink.LRChannelConfig(r.LRChannelConfig)
	if lr != datalink.LRChannelNone && !region.IsLR() {
		return 0, 0, fmt.Errorf("region %s has no long range channels", region)
	}

	return region, lr, nil
}

// Options converts the tuning section into the transport layer config.
func (t TransferConfig) Options() transfer.Config {
	return transfer.Config{
		PoolSize: t.PoolSize,
		Retries:  t.Retries,
		UseLBT:   t.UseLBT,
		Timeouts: transfer.Timeouts{
			Direct:     time.Duration(t.DirectAckTimeoutMs) * time.Millisecond,
			Direct9600: time.Duration(t.Direct9600AckMs) * time.Millisecond,
			PerHop:     time.Duration(t.PerHopAckMs) * time.Millisecond,
			Explore:    time.Duration(t.ExploreAckMs) * time.Millisecond,
		},
	}
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
