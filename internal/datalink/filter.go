package datalink

import "github.com/skobkin/zwavelink/internal/frame"

// FilterFlag selects which ReceiveFilter fields must match.
type FilterFlag uint8

const (
	FilterPayloadIndex2 FilterFlag = 0x08
	FilterPayloadIndex1 FilterFlag = 0x10
	FilterDestination   FilterFlag = 0x20
	FilterSource        FilterFlag = 0x40
	FilterHomeID        FilterFlag = 0x80

	filterPayloadFlags = FilterPayloadIndex1 | FilterPayloadIndex2
)

// MaxFiltersPerType bounds each per frame type filter list.
const MaxFiltersPerType = 5

// FrameHandler receives frames that matched a filter. The frame is only valid during the call.
type FrameHandler func(*ReceiveFrame)

// ReceiveFilter routes received frames of one type to a handler.
type ReceiveFilter struct {
	FrameType   frame.FrameType
	Flags       FilterFlag
	HomeID      frame.HomeID
	Source      frame.NodeID
	Destination frame.NodeID

	PayloadIndex1 uint8
	PayloadValue1 uint8
	PayloadIndex2 uint8
	PayloadValue2 uint8

	// Owner is the registration token RemoveFilter matches on.
	Owner   string
	Handler FrameHandler
}

func (f *ReceiveFilter) sameAs(o *ReceiveFilter) bool {
	if f.Flags != o.Flags || f.Owner != o.Owner {
		return false
	}
	if f.Flags&FilterHomeID != 0 && f.HomeID != o.HomeID {
		return false
	}
	if f.Flags&FilterDestination != 0 && f.Destination != o.Destination {
		return false
	}
	if f.Flags&FilterSource != 0 && f.Source != o.Source {
		return false
	}
	if f.Flags&FilterPayloadIndex1 != 0 && (f.PayloadIndex1 != o.PayloadIndex1 || f.PayloadValue1 != o.PayloadValue1) {
		return false
	}
	if f.Flags&FilterPayloadIndex2 != 0 && (f.PayloadIndex2 != o.PayloadIndex2 || f.PayloadValue2 != o.PayloadValue2) {
		return false
	}

	return true
}

// matches checks the flagged criteria against a parsed frame. payload is the frame after the header.
func (f *ReceiveFilter) matches(rx *ReceiveFrame, payload []byte) bool {
	if f.Flags&FilterHomeID != 0 && f.HomeID != rx.HomeID {
		return false
	}
	if f.Flags&FilterDestination != 0 && f.Destination != rx.Destination {
		return false
	}
	if f.Flags&FilterSource != 0 && f.Source != rx.Source {
		return false
	}
	if f.Flags&FilterPayloadIndex1 != 0 && (int(f.PayloadIndex1) >= len(payload) || payload[f.PayloadIndex1] != f.PayloadValue1) {
		return false
	}
	if f.Flags&FilterPayloadIndex2 != 0 && (int(f.PayloadIndex2) >= len(payload) || payload[f.PayloadIndex2] != f.PayloadValue2) {
		return false
	}

	return true
}

type filterEntry struct {
	filter ReceiveFilter
	paused bool
}

type filterTable struct {
	singlecast []filterEntry
	routed     []filterEntry
	explore    []filterEntry
	multicast  []filterEntry
	ack        []filterEntry
}

func (t *filterTable) list(ft frame.FrameType) *[]filterEntry {
	switch ft {
	case frame.TypeSinglecast:
		return &t.singlecast
	case frame.TypeRouted:
		return &t.routed
	case frame.TypeExplore:
		return &t.explore
	case frame.TypeMulticast:
		return &t.multicast
	case frame.TypeTransferAck:
		return &t.ack
	default:
		return nil
	}
}

// AddFilter registers f. More specific filters (higher flag value) are consulted first.
func (l *Layer) AddFilter(f ReceiveFilter) ReturnCode {
	if f.Handler == nil {
		return InvalidParameters
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.filters.list(f.FrameType)
	if list == nil {
		return InvalidParameters
	}
	if len(*list) >= MaxFiltersPerType {
		return NoMemory
	}
	switch f.FrameType {
	case frame.TypeMulticast:
		if f.Flags&FilterDestination != 0 {
			return InvalidParameters
		}
	case frame.TypeTransferAck:
		if f.Flags&filterPayloadFlags != 0 {
			return InvalidParameters
		}
	}

	at := len(*list)
	for at > 0 && (*list)[at-1].filter.Flags < f.Flags {
		at--
	}
	*list = append(*list, filterEntry{})
	copy((*list)[at+1:], (*list)[at:])
	(*list)[at] = filterEntry{filter: f}

	return Success
}

// RemoveFilter drops the first filter equal to f in every flagged field and owner.
func (l *Layer) RemoveFilter(f ReceiveFilter) ReturnCode {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.filters.list(f.FrameType)
	if list == nil {
		return InvalidParameters
	}
	for i := range *list {
		if (*list)[i].filter.sameAs(&f) {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return Success
		}
	}

	return InvalidParameters
}

// PauseFilters pauses or resumes every registered filter.
func (l *Layer) PauseFilters(pause bool) ReturnCode {
	l.mu.Lock()
	defer l.mu.Unlock()

	rc := Unsupported
	for _, list := range []*[]filterEntry{
		&l.filters.explore, &l.filters.multicast, &l.filters.singlecast, &l.filters.routed, &l.filters.ack,
	} {
		for i := range *list {
			(*list)[i].paused = pause
			rc = Success
		}
	}

	return rc
}

// matchFilter returns the handler of the first active filter accepting rx.
func (l *Layer) matchFilter(rx *ReceiveFrame, payload []byte) FrameHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.filters.list(rx.Type)
	if list == nil {
		return nil
	}
	for i := range *list {
		e := &(*list)[i]
		if e.paused || !e.filter.matches(rx, payload) {
			continue
		}

		return e.filter.Handler
	}

	return nil
}
