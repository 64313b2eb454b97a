package datalink

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skobkin/zwavelink/internal/frame"
)

// TransmitFrame sends f with the given profile. Beam profiles send only the wakeup beam.
func (l *Layer) TransmitFrame(ctx context.Context, profile Profile, f *TransmitFrame) ReturnCode {
	if profile == ProfileUnsupported || profile.HeaderFormat() == frame.FormatUndefined {
		return Unsupported
	}
	if f == nil {
		return InvalidParameters
	}

	ctx, span := l.tracer.Start(ctx, "datalink.transmit",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("zwave.profile", profile.String()),
			attribute.String("zwave.format", profile.HeaderFormat().String()),
			attribute.String("zwave.frame_type", f.Options.Type.String()),
			attribute.Int("zwave.destination", int(f.Options.Destination)),
			attribute.Bool("zwave.retransmit", f.Status&StatusRetransmit != 0),
		),
	)
	defer span.End()

	rc := l.transmit(ctx, profile, f)
	l.stats.countResult(rc)
	span.SetAttributes(attribute.String("zwave.result", rc.String()))
	if rc != Success {
		span.SetStatus(codes.Error, rc.String())
	}

	return rc
}

func (l *Layer) transmit(ctx context.Context, profile Profile, f *TransmitFrame) ReturnCode {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	f.Profile = profile
	f.Channel = profile.Channel()

	if profile.IsBeam() {
		return l.transmitBeam(ctx, profile, f)
	}

	format := profile.HeaderFormat()
	var err error
	if f.Status&StatusRetransmit != 0 {
		l.stats.txRetransmits.Add(1)
		err = l.rewriteRetransmit(f, format)
	} else {
		switch f.Options.Type {
		case frame.TypeSinglecast, frame.TypeRouted:
			err = l.constructSinglecast(f, format)
		case frame.TypeExplore:
			err = l.constructExplore(f, format)
		case frame.TypeTransferAck:
			err = l.constructAck(f, format)
		case frame.TypeMulticast:
			err = l.constructMulticast(f, format)
		case frame.TypeFlooded:
			l.logger.Debug("frame type not transmittable", "frame_type", f.Options.Type, "profile", profile)
			return Unsupported
		default:
			l.logger.Debug("frame type not transmittable", "frame_type", f.Options.Type, "profile", profile)
			return Unsupported
		}
	}
	if err != nil {
		return l.constructFailed(profile, f, err)
	}

	params, _ := profile.TxParams()
	err = l.radio.Transmit(ctx, params, f.Header, f.Payload, f.UseLBT, f.TxPower)
	rc := ReturnCodeFromError(err)
	l.countTx(rc)
	l.logger.Debug("frame transmitted",
		"profile", profile,
		"format", format,
		"frame_type", f.Options.Type,
		"seq", f.Options.Sequence,
		"dst", f.Options.Destination,
		"len", len(f.Header)+len(f.Payload),
		"result", rc,
	)

	return rc
}

func (l *Layer) constructFailed(profile Profile, f *TransmitFrame, err error) ReturnCode {
	l.logger.Error("header construction failed",
		"profile", profile,
		"frame_type", f.Options.Type,
		"dst", f.Options.Destination,
		"error", err,
	)
	if errors.Is(err, frame.ErrFieldRange) {
		return InvalidParameters
	}

	return UnknownError
}

func (l *Layer) transmitBeam(ctx context.Context, profile Profile, f *TransmitFrame) ReturnCode {
	home, dst := f.Options.HomeID, f.Options.Destination

	var beam []byte
	switch profile {
	case Profile40KWakeup250, Profile40KWakeup1000:
		b := frame.Beam2CH(uint8(dst), frame.HomeIDHash(home, frame.Format2CH))
		beam = b[:]
	case Profile3CH100KWakeup, Profile3CHWakeupA, Profile3CHWakeupB, Profile3CHWakeupC:
		// 3CH beams carry the beam tag where the home ID hash would be.
		b := frame.Beam2CH(uint8(dst), frame.BeamTag)
		beam = b[:]
	case Profile100KLRWakeupA, Profile100KLRWakeupB:
		if f.Status&StatusRetransmit != 0 && l.lastBeamStatus&StatusRetransmit == 0 {
			l.updateLRTxPower(f)
		}
		l.lastBeamStatus = f.Status
		b := frame.BeamLR(dst, f.TxPower, frame.HomeIDHash(home, frame.FormatLR))
		beam = b[:]
	default:
		return Unsupported
	}

	l.beamDurationMs = profile.BeamDurationMs()
	params, _ := profile.TxParams()
	err := l.radio.TransmitBeam(ctx, params, beam, f.TxPower)
	rc := ReturnCodeFromError(err)
	l.countTx(rc)
	l.logger.Debug("wakeup beam transmitted", "profile", profile, "dst", dst, "result", rc)

	return rc
}

func (l *Layer) countTx(rc ReturnCode) {
	switch rc {
	case Success:
		l.stats.txFrames.Add(1)
	case Busy:
		l.stats.txLBTFailures.Add(1)
	case InvalidParameters, Unsupported, NoMemory, UnknownError:
	}
}

// ReTransmitStart marks f as a retransmission. Beams are never marked.
func ReTransmitStart(f *TransmitFrame) {
	if !f.Profile.IsBeam() {
		f.Status |= StatusRetransmit
	}
}

func ReTransmitStop(f *TransmitFrame) {
	f.Status &^= StatusRetransmit
}

func IsReTransmitEnabled(f *TransmitFrame) bool {
	return f.Status&StatusRetransmit != 0
}
