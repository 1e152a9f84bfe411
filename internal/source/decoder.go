package source

import (
	"github.com/reaktor-nukleus/http-source/internal/route"
	"github.com/reaktor-nukleus/http-source/internal/slab"
)

// decodeHttpBegin scans for a complete header block, routes the request,
// and opens the downstream target, or buffers an incomplete block in the
// stream's slot (§4.2). It is also the decoder the stream returns to
// between pipelined requests.
//
// A call driven by drainSlot hands buf as the stream's own slot buffer,
// re-scanning bytes already resident there; appendToSlot only ever runs
// when slotIndex is still NoSlot, i.e. the first time this buffer's
// partial header block is seen (§4.6's no-reappend invariant).
func decodeHttpBegin(s *Stream, buf []byte, offset, limit int) int {
	end := headersEnd(buf, offset, limit)
	if end == -1 {
		if s.slotIndex == slab.NoSlot {
			if err := s.appendToSlot(buf[offset:limit]); err != nil {
				s.reject(431)
				return limit
			}
		}
		if s.headerSlotExhausted() {
			s.reject(431)
			return limit
		}
		return offset
	}

	req, err := decodeHeaderBlock(buf[offset : end-len(crlfcrlf)])
	if err != nil {
		s.reject(err.(*ProtocolError).Status)
		return limit
	}

	routes := s.factory.routes.Routes(s.sourceRef)
	rt, ok := route.Resolve(routes, req.headers)
	if !ok {
		s.reject(404)
		return limit
	}

	s.openTarget(rt, req)
	switch {
	case s.hasUpgrade:
		s.decode = decodeHttpDataAfterUpgrade
		s.throttleState = throttleForHttpDataAfterUpgrade
	case s.contentRemaining > 0:
		s.decode = decodeHttpData
		s.throttleState = throttleForHttpData
	default:
		s.endTarget()
	}
	return end
}

// headerSlotExhausted reports whether this stream can no longer buffer
// more header bytes: its slot has run out of room and the source has no
// window left to request a smaller chunk (§4.2).
func (s *Stream) headerSlotExhausted() bool {
	if s.slotIndex == slab.NoSlot {
		return false
	}
	buf := s.factory.slab.Buffer(s.slotIndex)
	remaining := len(buf) - s.slotPosition
	return remaining < 2 && s.window == 0
}

// decodeHttpData forwards request-body bytes bounded by content-length
// and the target's current credit, buffering any overflow (§4.2). A
// drainSlot-driven call never re-buffers: buf is the slot's own backing
// array, so any unconsumed tail is already resident there; returning the
// advanced offset unchanged lets drainSlot hold the slot and wait for
// more target credit instead of duplicating bytes (§4.6).
func decodeHttpData(s *Stream, buf []byte, offset, limit int) int {
	n := min(limit-offset, s.contentRemaining, s.availableTargetWindow)
	if n > 0 {
		s.target.DoHTTPData(s.targetID, buf[offset:offset+n])
		s.contentRemaining -= n
		s.availableTargetWindow -= n
		offset += n
	}
	if s.contentRemaining == 0 {
		s.endTarget()
		return offset
	}
	if offset == limit || s.slotIndex != slab.NoSlot {
		return offset
	}
	if err := s.appendToSlot(buf[offset:limit]); err != nil {
		s.fatal(err)
	}
	return limit
}

// decodeHttpDataAfterUpgrade forwards opaque post-upgrade bytes bounded
// only by the target's current credit; it never ends the target stream.
// Same no-reappend guard as decodeHttpData.
func decodeHttpDataAfterUpgrade(s *Stream, buf []byte, offset, limit int) int {
	n := min(limit-offset, s.availableTargetWindow)
	if n > 0 {
		s.target.DoHTTPData(s.targetID, buf[offset:offset+n])
		s.availableTargetWindow -= n
		offset += n
	}
	if offset == limit || s.slotIndex != slab.NoSlot {
		return offset
	}
	if err := s.appendToSlot(buf[offset:limit]); err != nil {
		s.fatal(err)
	}
	return limit
}

// drained absorbs any bytes arriving after a reject or fatal reset.
func drained(s *Stream, buf []byte, offset, limit int) int {
	return limit
}
