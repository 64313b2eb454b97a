package transfer

import "github.com/skobkin/zwavelink/internal/frame"

// PayloadTooLarge reports whether n payload bytes cannot be sent with the given
// speed, options and header format. Classic broadcasts always go out at 9.6k and
// are held to the legacy limit. Without NO_ROUTE the routed limit applies since a
// cached route may be used.
func PayloadTooLarge(n int, speed frame.Speed, options TxOptions, format frame.HeaderFormat, isBroadcast, isFLiRS bool) bool {
	if speed == frame.Speed100KLR || format == frame.FormatLR {
		return n > frame.MaxSinglecastPayloadLR
	}

	explore := options.Has(OptionExplore)
	noRoute := options.Has(OptionNoRoute)
	is3CH := format == frame.Format3CH

	switch {
	case speed == frame.SpeedAuto || speed == frame.Speed100K || is3CH:
		if n > frame.MaxSinglecastPayload {
			return true
		}
		if !is3CH && isBroadcast && n > frame.MaxSinglecastPayloadLegacy {
			return true
		}
		if explore && n > frame.MaxExplorePayloadLegacy && (!is3CH || n > frame.MaxExplorePayload3CH) {
			return true
		}
		if !noRoute {
			if is3CH {
				return n > frame.MaxRoutedPayload3CH
			}
			return n > frame.MaxRoutedPayload || (isFLiRS && n > frame.MaxRoutedPayloadFLiRS)
		}

		return false
	case speed == frame.Speed9600 || speed == frame.Speed40K:
		if n > frame.MaxSinglecastPayload {
			return true
		}
		if isBroadcast && n > frame.MaxSinglecastPayloadLegacy {
			return true
		}
		if noRoute && n > frame.MaxSinglecastPayloadLegacy {
			return true
		}
		if !explore && options.Has(OptionAutoRoute) &&
			(n > frame.MaxRoutedPayloadLegacy || (isFLiRS && n > frame.MaxRoutedPayloadFLiRSLegacy)) {
			return true
		}

		return explore && n > frame.MaxExplorePayloadLegacy
	default:
		return true
	}
}
