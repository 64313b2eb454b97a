package transfer

import (
	"context"
	"slices"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

// Header extension types.
const (
	extendTypeWakeup       = 0x00
	extendTypeRSSIIncoming = 0x01
)

const (
	destWakeup250  = 0x20
	destWakeup1000 = 0x40
)

// build writes the routing decision of e into its frame and starts a new
// attempt: fresh header, fresh sequence number, zero link retries.
func (c *TransportContext) build(e *TxElement, explore bool) {
	f := &e.Frame
	o := &f.Options
	datalink.ReTransmitStop(f)
	f.Header = nil
	e.Retries = 0
	e.waitingRoutedAck = false
	o.Routed, o.Route, o.Explore, o.Extension = false, nil, nil, nil

	switch {
	case explore:
		o.Type = frame.TypeExplore
		h := frame.NewExploreHeader(frame.ExploreRandomIntervalDefault)
		o.Explore = &h
	case e.routed() && e.Format != frame.FormatLR:
		o.Type = frame.TypeSinglecast
		o.Routed = true
		o.Route = &frame.Route{Repeaters: slices.Clone(e.route.Repeaters)}
		if e.destWakeup != 0 {
			if e.Format == frame.Format3CH {
				o.Route.DestWakeup = e.destWakeup >> 5
			} else {
				o.Extension = &frame.Extension{Type: extendTypeWakeup, Body: []byte{e.destWakeup}}
			}
		}
	default:
		o.Type = frame.TypeSinglecast
	}

	switch e.Format {
	case frame.Format2CH:
		o.Sequence = c.seq.NextSequence2CH(e.Speed != frame.Speed9600, o.Routed)
	default:
		o.Sequence = c.seq.NextSequence(e.Format)
	}
}

// rebuild restarts e with its current routing state and sends it.
func (c *TransportContext) rebuild(e *TxElement) {
	c.build(e, false)
	c.requeue(e)
}

// RetransmitFail advances the routing scheme of the frame waiting for an ACK.
func (c *TransportContext) RetransmitFail(ctx context.Context) error {
	return c.do(ctx, c.retransmitFail)
}

// retransmitFail picks the next way to reach the destination once the current
// attempt is exhausted. The element is either sent again or completed.
func (c *TransportContext) retransmitFail() {
	e := c.waiting
	if e == nil {
		return
	}
	c.stopTimer()
	datalink.ReTransmitStop(&e.Frame)

	if c.appAbort && e.Options.Has(OptionApplication) {
		c.logger.Debug("frame aborted by application", "dst", e.destination(), "state", e.State)
		c.complete(e, TxFail, nil)
		c.kick()
		return
	}
	if e.Format == frame.Format2CH {
		e.Frame.Options.SpeedModified = false
	}

	var next bool
	if c.layer.Role() == datalink.RoleController {
		next = c.nextControllerScheme(e)
	} else {
		next = c.nextEndDeviceScheme(e)
	}
	if next {
		return
	}

	if e.State < StateResortExplore && e.ExploreEligible && e.Format != frame.FormatLR {
		c.fallbackExplore(e)
		return
	}

	c.logger.Info("frame not acknowledged", "dst", e.destination(), "state", e.State, "transmissions", e.Transmissions)
	c.complete(e, TxNoAck, nil)
	c.kick()
}

// restoreBeam undoes the first try without beam.
func restoreBeam(e *TxElement) bool {
	if !e.Options.Has(OptionNoBeam) {
		return false
	}
	e.Options &^= OptionNoBeam
	e.BeamProfile = e.savedBeam

	return e.BeamProfile != datalink.ProfileUnsupported
}

func (c *TransportContext) nextControllerScheme(e *TxElement) bool {
	dst := e.destination()

	if e.Format == frame.FormatLR {
		if !restoreBeam(e) {
			return false
		}
		e.State = StateDirect
		e.Frame.TxPower = c.power.reduceAfterNoBeam(dst, e.Frame.TxPower)
		c.rebuild(e)
		return true
	}

	if e.State == StateDirect {
		if !e.Options.Has(OptionNoRoute) && c.nodes != nil {
			if r, ok := c.nodes.CachedRoute(dst); ok {
				e.route = r
				if r.Speed != frame.SpeedAuto && e.Format == frame.Format2CH {
					e.Speed = r.Speed
				}
				e.State = StateCachedRoute
				c.rebuild(e)
				return true
			}
		}
		if restoreBeam(e) {
			c.rebuild(e)
			return true
		}
	}

	if e.State >= StateCachedRouteSR && e.State <= StateCachedRouteNLWR {
		if !e.Options.Has(OptionNoBeam) {
			if c.nodes != nil {
				c.nodes.PurgeCachedRoute(dst)
			}
			c.logger.Debug("cached route purged", "dst", dst, "repeaters", e.route.Repeaters)
		} else if restoreBeam(e) {
			e.State = StateDirect
			c.rebuild(e)
			return true
		}
	}

	if e.Options.Has(OptionAutoRoute) && e.State <= StateRoute {
		if e.State < StateRoute {
			e.routeIndex = 0
		}
		e.Options &^= OptionNoBeam
		e.BeamProfile = e.savedBeam

		if e.Format == frame.Format2CH && e.Own && e.routed() && e.Speed == frame.Speed100K &&
			len(e.Frame.Header)+len(e.Frame.Payload)+frame.ChecksumLen(e.Format, e.Frame.Channel) <= frame.RxMaxLegacy {
			// Same route once more at 40k before moving on.
			e.Speed = frame.Speed40K
			c.build(e, false)
			e.Frame.Options.SpeedModified = true
			c.requeue(e)
			return true
		}

		if r, ok := c.nextRoute(e, c.routes(dst)); ok {
			e.route = r
			e.State = StateRoute
			c.rebuild(e)
			return true
		}
	}

	if e.Options.Has(OptionAutoRoute) && e.State < StateResortDirect {
		e.route = Route{}
		e.Speed = c.directSpeed(e)
		e.State = StateResortDirect
		c.rebuild(e)
		return true
	}

	return false
}

func (c *TransportContext) nextEndDeviceScheme(e *TxElement) bool {
	if e.Format == frame.Format2CH && e.Own && e.routed() && e.Speed == frame.Speed100K &&
		len(e.Frame.Header)+len(e.Frame.Payload)+frame.ChecksumLen(e.Format, e.Frame.Channel) <= frame.RxMaxLegacy {
		e.Speed = frame.Speed40K
		c.build(e, false)
		e.Frame.Options.SpeedModified = true
		c.requeue(e)
		return true
	}

	if !e.Options.Has(OptionAutoRoute) || e.State > StateRoute {
		return false
	}
	if restoreBeam(e) {
		c.rebuild(e)
		return true
	}

	if e.State <= StateCachedRoute {
		e.routeIndex = 0
	}
	e.State = StateRoute
	if r, ok := c.nextRoute(e, c.returnRoutes(e.destination())); ok {
		e.route = r
		c.rebuild(e)
		return true
	}

	e.route = Route{}
	e.Speed = frame.Speed100K
	e.State = StateResortDirect
	c.rebuild(e)

	return true
}

// nextRoute returns the next entry of routes after the ones already tried.
func (c *TransportContext) nextRoute(e *TxElement, routes []Route) (Route, bool) {
	for e.routeIndex < len(routes) {
		r := routes[e.routeIndex]
		e.routeIndex++
		if slices.Equal(r.Repeaters, e.route.Repeaters) && e.State == StateCachedRoute {
			continue
		}
		if r.Speed != frame.SpeedAuto && e.Format == frame.Format2CH {
			e.Speed = r.Speed
		}
		return r, true
	}

	return Route{}, false
}

func (c *TransportContext) routes(id frame.NodeID) []Route {
	if c.nodes == nil {
		return nil
	}

	return c.nodes.Routes(id)
}

// directSpeed is the best speed the destination supports for a direct frame.
func (c *TransportContext) directSpeed(e *TxElement) frame.Speed {
	p, known := c.nodeProfile(e.destination())

	return c.chooseSpeed(e.Format, p, known, false)
}

// fallbackExplore sends e once as an explore frame at 40k.
func (c *TransportContext) fallbackExplore(e *TxElement) {
	limit := frame.MaxExplorePayloadLegacy
	if e.Format == frame.Format3CH {
		limit = frame.MaxExplorePayload3CH
	}
	if len(e.Frame.Payload) > limit {
		c.logger.Debug("explore fallback skipped", "dst", e.destination(), "len", len(e.Frame.Payload), "limit", limit)
		c.complete(e, TxNoAck, nil)
		c.kick()
		return
	}

	e.State = StateResortExplore
	e.route = Route{}
	e.Options &^= OptionNoBeam
	e.BeamProfile = e.savedBeam
	if e.Format == frame.Format2CH {
		e.Speed = frame.Speed40K
	}
	c.stats.exploreFallback.Add(1)
	c.build(e, true)
	c.requeue(e)
}
