package frame

import "fmt"

// Route status bits of a routed header.
const (
	RouteInbound       = 0x01
	RouteAck           = 0x02
	RouteErr           = 0x04
	RouteExtend        = 0x08
	RouteSpeedModified = 0x10
	routeErrHopMask    = 0xF0
)

// Route is the repeater part of a routed singlecast header.
type Route struct {
	Status     uint8
	Hops       uint8
	Repeaters  []uint8
	DestWakeup uint8
}

// Len is the number of repeaters in the route.
func (r *Route) Len() int {
	if r == nil {
		return 0
	}

	return len(r.Repeaters)
}

// IsAckOrErr reports whether the routed frame is a routed ACK or routed error.
func (r *Route) IsAckOrErr() bool {
	return r != nil && r.Status&(RouteAck|RouteErr) != 0
}

// ErrorHop is the failing hop index stored in a routed error.
func (r *Route) ErrorHop() uint8 {
	return (r.Status & routeErrHopMask) >> 4
}

func (r *Route) numRepsNumHops() (byte, error) {
	if len(r.Repeaters) > MaxRepeaters {
		return 0, fmt.Errorf("route with %d repeaters: %w", len(r.Repeaters), ErrFieldRange)
	}

	return byte(len(r.Repeaters))<<4 | r.Hops&0x0F, nil
}

func (r *Route) appendHeader(b []byte, status byte) ([]byte, error) {
	nrh, err := r.numRepsNumHops()
	if err != nil {
		return nil, err
	}
	b = append(b, status, nrh)

	return append(b, r.Repeaters...), nil
}

func parseRouteHeader(raw []byte, at int) (*Route, int, error) {
	if len(raw) < at+2 {
		return nil, 0, fmt.Errorf("route header: %w", ErrShortFrame)
	}
	r := &Route{Status: raw[at], Hops: raw[at+1] & 0x0F}
	reps := int(raw[at+1] >> 4)
	if reps > MaxRepeaters {
		return nil, 0, fmt.Errorf("route with %d repeaters: %w", reps, ErrFieldRange)
	}
	at += 2
	if len(raw) < at+reps {
		return nil, 0, fmt.Errorf("repeater list: %w", ErrShortFrame)
	}
	r.Repeaters = make([]uint8, reps)
	copy(r.Repeaters, raw[at:at+reps])

	return r, at + reps, nil
}
