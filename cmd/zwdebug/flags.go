package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/config"
)

// connectionFlags override the connection and radio sections of the loaded config.
type connectionFlags struct {
	connector  string
	host       string
	port       int
	serialPort string
	baud       int
	region     string
}

func (f *connectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.connector, "connector", "", "link to the radio: serial or ip")
	cmd.Flags().StringVar(&f.host, "host", "", "radio bridge host for the ip connector")
	cmd.Flags().IntVar(&f.port, "port", 0, "radio bridge TCP port for the ip connector")
	cmd.Flags().StringVar(&f.serialPort, "serial", "", "serial device for the serial connector, e.g. /dev/ttyUSB0")
	cmd.Flags().IntVar(&f.baud, "baud", 0, "serial baud rate")
	cmd.Flags().StringVar(&f.region, "region", "", "radio region, e.g. EU, US, US_LR")
}

// apply copies every set flag into cfg. A host or serial port alone also selects its connector.
func (f *connectionFlags) apply(cfg *config.AppConfig) {
	if host := strings.TrimSpace(f.host); host != "" {
		cfg.Connection.Host = host
		cfg.Connection.Connector = config.ConnectorIP
	}
	if f.port > 0 {
		cfg.Connection.Port = f.port
	}
	if port := strings.TrimSpace(f.serialPort); port != "" {
		cfg.Connection.SerialPort = port
		cfg.Connection.Connector = config.ConnectorSerial
	}
	if f.baud > 0 {
		cfg.Connection.SerialBaud = f.baud
	}
	if connector := strings.TrimSpace(f.connector); connector != "" {
		cfg.Connection.Connector = config.ConnectorType(strings.ToLower(connector))
	}
	if region := strings.TrimSpace(f.region); region != "" {
		cfg.Radio.Region = region
	}
}
