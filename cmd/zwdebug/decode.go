package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skobkin/zwavelink/internal/frame"
)

type decodedField struct {
	Name  string
	Value string
}

type decodedFrame struct {
	Format  frame.HeaderFormat
	Fields  []decodedField
	Payload []byte
}

func (d *decodedFrame) add(name string, value any) {
	d.Fields = append(d.Fields, decodedField{Name: name, Value: fmt.Sprint(value)})
}

func decodeCmd() *cobra.Command {
	var (
		format     string
		channel    uint8
		noChecksum bool
	)

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a captured MAC frame",
		Long: `Decode a MAC frame given as hex and print its header fields.
The frame is expected to end with its checksum unless --no-checksum is set.`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			raw, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return fmt.Errorf("parse frame: %w", err)
			}
			decoded, err := decodeFrame(f, channel, raw, !noChecksum)
			if err != nil {
				return err
			}

			return printDecoded(cmd.OutOrStdout(), decoded)
		},
	}
	cmd.Flags().StringVar(&format, "format", "2ch", "header format: 2ch, 3ch or lr")
	cmd.Flags().Uint8Var(&channel, "channel", 0, "channel the frame was received on, selects CRC16 or LRC for 2ch")
	cmd.Flags().BoolVar(&noChecksum, "no-checksum", false, "the frame has no trailing checksum")

	return cmd
}

func parseFormat(raw string) (frame.HeaderFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "2ch", "":
		return frame.Format2CH, nil
	case "3ch":
		return frame.Format3CH, nil
	case "lr":
		return frame.FormatLR, nil
	default:
		return frame.FormatUndefined, fmt.Errorf("unknown header format %q", raw)
	}
}

func decodeFrame(format frame.HeaderFormat, channel uint8, raw []byte, withChecksum bool) (decodedFrame, error) {
	body := raw
	if withChecksum {
		var err error
		if body, err = frame.VerifyChecksum(raw, format, channel); err != nil {
			return decodedFrame{}, err
		}
	}

	out := decodedFrame{Format: format}
	out.add("format", format)

	var (
		next      int
		frameType frame.FrameType
		err       error
	)
	switch format {
	case frame.Format2CH:
		var h frame.Header2CH
		if h, next, err = frame.Parse2CH(body); err != nil {
			return decodedFrame{}, err
		}
		frameType = h.Type
		out.addCommon(h.HomeID, frame.NodeID(h.Source), h.Type, h.Length, h.Sequence, h.Ack)
		out.add("low_power", h.LowPower)
		out.add("speed_modified", h.SpeedModified)
		out.add("wakeup", wakeupName(h.Wakeup250, h.Wakeup1000))
		out.addDestination(frame.NodeID(h.Destination), h.Multicast)
		out.addRoute(h.Route)
		out.addExtension(h.Extension)
	case frame.Format3CH:
		var h frame.Header3CH
		if h, next, err = frame.Parse3CH(body); err != nil {
			return decodedFrame{}, err
		}
		frameType = h.Type
		out.addCommon(h.HomeID, frame.NodeID(h.Source), h.Type, h.Length, h.Sequence, h.Ack)
		out.add("low_power", h.LowPower)
		out.add("wakeup", wakeupName(h.Wakeup250, h.Wakeup1000))
		out.addDestination(frame.NodeID(h.Destination), h.Multicast)
		out.addRoute(h.Route)
		out.addExtension(h.Extension)
	case frame.FormatLR:
		var h frame.HeaderLR
		if h, next, err = frame.ParseLR(body); err != nil {
			return decodedFrame{}, err
		}
		frameType = h.Type
		out.addCommon(h.HomeID, h.Source, h.Type, h.Length, h.Sequence, h.Ack)
		out.add("dst", h.Destination)
		out.add("noise_floor", fmt.Sprintf("%d dBm", h.NoiseFloor))
		out.add("tx_power", fmt.Sprintf("%d dBm", h.TxPower))
		out.addExtension(h.Extension)
	default:
		return decodedFrame{}, fmt.Errorf("decode %s frame: %w", format, frame.ErrUnsupportedType)
	}

	if frameType == frame.TypeExplore {
		e, n, err := frame.ParseExplore(body, next)
		if err != nil {
			return decodedFrame{}, err
		}
		next = n
		out.add("explore_cmd", e.Command())
		out.add("explore_ttl", e.TTL())
		out.add("explore_repeaters", formatRepeaters(e.Repeaters[:e.RepeaterCount()]))
	}
	out.Payload = body[next:]

	return out, nil
}

func (d *decodedFrame) addCommon(home frame.HomeID, src frame.NodeID, t frame.FrameType, length, seq uint8, ack bool) {
	d.add("home_id", home)
	d.add("src", src)
	d.add("type", t)
	d.add("length", length)
	d.add("seq", seq)
	d.add("ack", ack)
}

func (d *decodedFrame) addDestination(dst frame.NodeID, m *frame.MulticastAddress) {
	if m == nil {
		d.add("dst", dst)
		return
	}
	var members []string
	for id := frame.NodeID(1); id <= frame.MaxClassicNodeID; id++ {
		if m.Contains(id) {
			members = append(members, strconv.Itoa(int(id)))
		}
	}
	d.add("multicast", strings.Join(members, ","))
}

func (d *decodedFrame) addRoute(r *frame.Route) {
	if r == nil {
		return
	}
	d.add("route_status", fmt.Sprintf("0x%02X", r.Status))
	d.add("route_hops", r.Hops)
	d.add("repeaters", formatRepeaters(r.Repeaters))
}

func (d *decodedFrame) addExtension(ext *frame.Extension) {
	if ext == nil {
		return
	}
	d.add("extension", fmt.Sprintf("type=%d body=%X", ext.Type, ext.Body))
}

func wakeupName(w250, w1000 bool) string {
	switch {
	case w1000:
		return "1000ms"
	case w250:
		return "250ms"
	default:
		return "none"
	}
}

func printDecoded(w io.Writer, d decodedFrame) error {
	width := 0
	for _, f := range d.Fields {
		width = max(width, len(f.Name))
	}
	for _, f := range d.Fields {
		if _, err := fmt.Fprintf(w, "%-*s  %s\n", width, f.Name, f.Value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%-*s  %s\n", width, "payload", strings.ToUpper(hex.EncodeToString(d.Payload)))

	return err
}
