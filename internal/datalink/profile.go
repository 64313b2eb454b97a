package datalink

import "github.com/skobkin/zwavelink/internal/frame"

// Profile is a communication profile: speed, channel and beam flavour of a transmission.
type Profile uint8

const (
	ProfileUnsupported Profile = iota
	Profile9600
	Profile40K
	Profile40KWakeup250
	Profile40KWakeup1000
	Profile100K
	Profile100KLRA
	Profile100KLRB
	Profile100KLRWakeupA
	Profile100KLRWakeupB
	Profile3CH100K
	Profile3CH100KWakeup
	Profile3CHChannelA
	Profile3CHChannelB
	Profile3CHChannelC
	Profile3CHWakeupA
	Profile3CHWakeupB
	Profile3CHWakeupC
)

var profileNames = [...]string{
	ProfileUnsupported:   "unsupported",
	Profile9600:          "9.6k",
	Profile40K:           "40k",
	Profile40KWakeup250:  "40k-wakeup-250",
	Profile40KWakeup1000: "40k-wakeup-1000",
	Profile100K:          "100k",
	Profile100KLRA:       "100k-lr-a",
	Profile100KLRB:       "100k-lr-b",
	Profile100KLRWakeupA: "100k-lr-wakeup-a",
	Profile100KLRWakeupB: "100k-lr-wakeup-b",
	Profile3CH100K:       "3ch-100k",
	Profile3CH100KWakeup: "3ch-100k-wakeup",
	Profile3CHChannelA:   "3ch-100k-a",
	Profile3CHChannelB:   "3ch-100k-b",
	Profile3CHChannelC:   "3ch-100k-c",
	Profile3CHWakeupA:    "3ch-100k-wakeup-a",
	Profile3CHWakeupB:    "3ch-100k-wakeup-b",
	Profile3CHWakeupC:    "3ch-100k-wakeup-c",
}

func (p Profile) String() string {
	if int(p) < len(profileNames) {
		return profileNames[p]
	}

	return "invalid"
}

// HeaderFormat is the MAC header layout frames sent with p use.
// Beam profiles below the 3CH range map to 2CH since beams carry no header.
func (p Profile) HeaderFormat() frame.HeaderFormat {
	switch {
	case p == ProfileUnsupported || int(p) >= len(profileNames):
		return frame.FormatUndefined
	case p == Profile100KLRA || p == Profile100KLRB:
		return frame.FormatLR
	case p < Profile3CH100K:
		return frame.Format2CH
	default:
		return frame.Format3CH
	}
}

func (p Profile) IsBeam() bool {
	switch p {
	case Profile40KWakeup250, Profile40KWakeup1000,
		Profile100KLRWakeupA, Profile100KLRWakeupB,
		Profile3CH100KWakeup, Profile3CHWakeupA, Profile3CHWakeupB, Profile3CHWakeupC:
		return true
	default:
		return false
	}
}

// Channel is the PHY channel a transmission with p goes out on.
func (p Profile) Channel() uint8 {
	switch p {
	case Profile9600:
		return 2
	case Profile40K, Profile40KWakeup250, Profile40KWakeup1000:
		return 1
	case Profile3CHChannelA, Profile3CHWakeupA:
		return 0
	case Profile3CHChannelB, Profile3CHWakeupB:
		return 1
	case Profile3CHChannelC, Profile3CHWakeupC:
		return 2
	case Profile100KLRA, Profile100KLRWakeupA:
		return 3
	case Profile100KLRB, Profile100KLRWakeupB:
		return 4
	default:
		return 0
	}
}

func (p Profile) Speed() frame.Speed {
	switch p {
	case Profile9600:
		return frame.Speed9600
	case Profile40K, Profile40KWakeup250, Profile40KWakeup1000:
		return frame.Speed40K
	case Profile100KLRA, Profile100KLRB, Profile100KLRWakeupA, Profile100KLRWakeupB:
		return frame.Speed100KLR
	case ProfileUnsupported:
		return frame.SpeedAuto
	default:
		return frame.Speed100K
	}
}

// TxParams returns the PHY parameters for p. ok is false for ProfileUnsupported.
func (p Profile) TxParams() (TxParams, bool) {
	classic := TxParams{Preamble: PreambleClassic, StartOfFrame: StartOfFrameClassic, Channel: p.Channel(), Speed: p.Speed()}
	lr := TxParams{Speed: frame.Speed100K, Preamble: PreambleLR, StartOfFrame: StartOfFrameLR, Channel: p.Channel()}

	switch p {
	case Profile9600:
		classic.CRC, classic.PreambleLength = CRC8XOR, 10
		return classic, true
	case Profile40K:
		classic.CRC, classic.PreambleLength = CRC8XOR, 20
		return classic, true
	case Profile100K:
		classic.CRC, classic.PreambleLength = CRC16CCITT, 40
		return classic, true
	case Profile40KWakeup250:
		classic.CRC, classic.PreambleLength, classic.Repeats = CRCNone, 20, frame.BeamRepeats2CH250
		return classic, true
	case Profile40KWakeup1000:
		classic.CRC, classic.PreambleLength, classic.Repeats = CRCNone, 20, frame.BeamRepeats2CH1000
		return classic, true
	case Profile3CH100K, Profile3CHChannelA, Profile3CHChannelB, Profile3CHChannelC:
		classic.CRC, classic.PreambleLength = CRC16CCITT, 24
		return classic, true
	case Profile3CH100KWakeup, Profile3CHWakeupA, Profile3CHWakeupB, Profile3CHWakeupC:
		classic.CRC, classic.PreambleLength, classic.Repeats = CRCNone, 8, frame.BeamRepeats3CH
		return classic, true
	case Profile100KLRA, Profile100KLRB:
		lr.CRC, lr.PreambleLength = CRC16CCITT, 40
		return lr, true
	case Profile100KLRWakeupA, Profile100KLRWakeupB:
		lr.CRC, lr.PreambleLength, lr.Repeats = CRCNone, beamPreambleLR, frame.BeamRepeatsLR
		return lr, true
	default:
		return TxParams{}, false
	}
}

// Beam airtimes in milliseconds.
const (
	beamPreambleLR      = 8
	beamDuration2CH250  = 275
	beamDuration2CH1000 = 1100
	beamDuration3CH     = 100
	beamDurationLR      = 114
)

// BeamDurationMs is the time a beam sent with p occupies the channel.
func (p Profile) BeamDurationMs() int {
	switch p {
	case Profile40KWakeup250:
		return beamDuration2CH250
	case Profile40KWakeup1000:
		return beamDuration2CH1000
	case Profile3CH100KWakeup, Profile3CHWakeupA, Profile3CHWakeupB, Profile3CHWakeupC:
		return beamDuration3CH
	case Profile100KLRWakeupA, Profile100KLRWakeupB:
		return beamDurationLR
	default:
		return 0
	}
}
