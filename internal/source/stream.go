// Package source implements the source-input stream processor: the
// per-connection HTTP/1.1 decoder and bidirectional credit-based
// flow-control core that sits between the fabric transport and a routed
// downstream target. It is grounded throughout on the original
// SourceInputStreamFactory.java, translated from its closure-based
// decoder/throttle/stream states into tagged function-pointer state
// variants per the specification's design notes, in the spirit of the
// teacher's explicit state-struct style (internal/h1.Connection,
// internal/transport.Connection).
package source

import (
	"fmt"

	"github.com/reaktor-nukleus/http-source/internal/correlation"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"github.com/reaktor-nukleus/http-source/internal/route"
	"github.com/reaktor-nukleus/http-source/internal/slab"
	"go.opentelemetry.io/otel/trace"
)

// decoderState is the current position in the HTTP/1.1 request state
// machine. It consumes buf[offset:limit] and returns the new offset; a
// returned offset equal to the one passed in means "need more input".
type decoderState func(s *Stream, buf []byte, offset, limit int) int

// streamStateFn is the current source-frame dispatch policy.
type streamStateFn func(s *Stream, f fabric.Frame)

// throttleStateFn is the current target-credit dispatch policy.
type throttleStateFn func(s *Stream, f fabric.Frame)

// Stream is one inbound HTTP/1.1 source connection: SourceInputStream.
type Stream struct {
	factory *Factory

	sourceID            uint64
	sourceCorrelationID uint64
	sourceRef           uint64

	target    fabric.Target
	targetID  uint64
	targetRef uint64

	slotIndex    int
	slotOffset   int
	slotPosition int

	window                int
	availableTargetWindow int
	contentRemaining      int
	hasUpgrade            bool
	endDeferred           bool

	decode        decoderState
	streamState   streamStateFn
	throttleState throttleStateFn

	correlation *correlation.State

	span trace.Span
}

// Handle dispatches one fabric frame arriving on the source's inbound
// stream id. It is the fabric.Handler returned by Factory.NewStream.
func (s *Stream) Handle(f fabric.Frame) {
	s.streamState(s, f)
}

// HandleThrottle dispatches one fabric frame arriving on the current
// target's throttle (WINDOW/RESET replying to the request being
// forwarded). Frames whose StreamID no longer matches the live
// targetID are stale and silently dropped (§4.4, invariant 6).
func (s *Stream) HandleThrottle(f fabric.Frame) {
	if f.StreamID != s.targetID {
		return
	}
	s.throttleState(s, f)
}

// debitWindow charges n bytes of already-granted source window. A DATA
// frame larger than the remaining window is a source misbehavior: reset
// and move to the rejected state rather than let window go negative.
func (s *Stream) debitWindow(n int) bool {
	if n > s.window {
		s.factory.logger.Printf("stream %d: %v (window=%d, got=%d)", s.sourceID, ErrStreamReset, s.window, n)
		s.factory.source.DoReset(s.sourceID)
		s.streamState = streamAfterRejectOrReset
		return false
	}
	s.window -= n
	return true
}

// decodeBuffer runs the current decoder repeatedly over buf until it
// stops making progress (either the buffer is exhausted or the decoder
// buffered the remainder and reported full consumption).
func (s *Stream) decodeBuffer(buf []byte) {
	offset, limit := 0, len(buf)
	for offset < limit {
		next := s.decode(s, buf, offset, limit)
		if next == offset {
			return
		}
		offset = next
	}
}

// ensureSlot acquires a slot for this stream if one isn't already held.
func (s *Stream) ensureSlot() bool {
	if s.slotIndex != slab.NoSlot {
		return true
	}
	idx := s.factory.slab.Acquire(s.sourceID)
	if idx == slab.NoSlot {
		return false
	}
	s.slotIndex = idx
	s.slotOffset = 0
	s.slotPosition = 0
	return true
}

// appendToSlot buffers tail into this stream's slot, compacting first
// via the factory's scratch region if tail would otherwise overflow the
// slot. Returns ErrNoSlot if the slab is exhausted or tail still doesn't
// fit after compaction (bytes beyond capacity are dropped in that case).
//
// Callers must never pass a tail that aliases this stream's own slot
// buffer (e.g. the slice drainSlot re-scans): doing so would duplicate
// already-buffered bytes. The decoder states guard every such call site
// with slotIndex == slab.NoSlot for exactly this reason (§4.2, §4.6).
func (s *Stream) appendToSlot(tail []byte) error {
	if len(tail) == 0 {
		return nil
	}
	if !s.ensureSlot() {
		return ErrNoSlot
	}
	buf := s.factory.slab.Buffer(s.slotIndex)
	if s.slotPosition+len(tail) > len(buf) {
		s.factory.compact(s)
		buf = s.factory.slab.Buffer(s.slotIndex)
	}
	n := copy(buf[s.slotPosition:], tail)
	s.slotPosition += n
	if n != len(tail) {
		return fmt.Errorf("append %d remaining bytes to slot %d: %w", len(tail)-n, s.slotIndex, ErrNoSlot)
	}
	return nil
}

// drainSlot re-runs the current decoder against the buffered slot
// content (processDeferredData), advancing slotOffset as bytes are
// consumed, and releases the slot once fully drained. The decoder is
// handed the slot's own backing array, so any unconsumed tail it reports
// is already resident — it must not be re-appended.
func (s *Stream) drainSlot() {
	if s.slotIndex == slab.NoSlot {
		return
	}
	buf := s.factory.slab.Buffer(s.slotIndex)
	limit := s.slotPosition
	for s.slotOffset < limit {
		next := s.decode(s, buf, s.slotOffset, limit)
		if next == s.slotOffset {
			return
		}
		s.slotOffset = next
	}
	if s.slotOffset >= s.slotPosition {
		s.releaseSlot()
	}
}

func (s *Stream) releaseSlot() {
	if s.slotIndex == slab.NoSlot {
		return
	}
	s.factory.slab.Release(s.slotIndex)
	s.slotIndex = slab.NoSlot
	s.slotOffset = 0
	s.slotPosition = 0
}

// ensureSourceWindow grants the source just enough additional window
// that it reaches min(availableTargetWindow, C), never more than the
// slab slot or the target can currently absorb (§4.4).
func (s *Stream) ensureSourceWindow() {
	target := min(s.availableTargetWindow, s.factory.slab.SlotCapacity())
	if target > s.window {
		delta := target - s.window
		s.window = target
		s.factory.source.DoWindow(s.sourceID, delta)
	}
}

// openTarget routes req to rt's target, opens the downstream stream, and
// registers this request against the shared reply correlation.
func (s *Stream) openTarget(rt route.Route, req decodedRequest) {
	s.target = rt.Target
	s.targetID = s.factory.nextID()
	s.targetRef = rt.TargetRef
	s.contentRemaining = req.contentLength
	s.hasUpgrade = req.hasUpgrade

	s.correlation.Retarget(rt.Target.Name())
	s.correlation.BeginRequest()
	corr := correlation.New(s.sourceCorrelationID, s.factory.source.Name(), s.correlation)
	s.factory.correlations.CorrelateNew(s.targetID, corr)

	s.target.DoHTTPBegin(s.targetID, s.targetRef, s.targetID, req.headers)
	s.target.SetThrottle(s.targetID, s.HandleThrottle)
	s.startSpan(req.headers)
}

// endTarget completes the current target request: HTTP-END downstream,
// drop its throttle registration, and return to header-decode state
// ready for the next pipelined request.
func (s *Stream) endTarget() {
	s.target.DoHTTPEnd(s.targetID)
	s.target.RemoveThrottle(s.targetID)
	s.decode = decodeHttpBegin
	s.throttleState = throttleIgnoreWindow
	s.endSpan(200)
}

// fatal handles conditions the specification marks as implementation-
// fatal (slab exhaustion mid-body, per §7) by resetting the source.
func (s *Stream) fatal(err error) {
	s.factory.logger.Printf("stream %d: %v", s.sourceID, err)
	s.releaseSlot()
	s.factory.source.DoReset(s.sourceID)
	s.streamState = streamAfterRejectOrReset
	s.decode = drained
	s.endSpan(500)
}

// reject implements processInvalidRequest (§4.5): open a loopback stream
// against a target of the same name as the source, install a one-shot
// reject-writer throttle streaming the canned response body, grant the
// source enough window to flush the remainder of the buffered request,
// and reset the source immediately so no further bytes are decoded.
func (s *Stream) reject(status int) {
	s.factory.logger.Printf("stream %d: %v (status=%d)", s.sourceID, ErrStreamReset, status)
	body := cannedResponse(status)
	if rejectTarget := s.factory.supplyTarget(s.factory.source.Name()); rejectTarget != nil {
		targetID := s.factory.nextID()
		rejectTarget.DoHTTPBegin(targetID, 0, s.sourceCorrelationID, nil)
		rejectTarget.SetThrottle(targetID, rejectWriterHandler(rejectTarget, targetID, body))
	}
	s.factory.source.DoWindow(s.sourceID, s.factory.slab.SlotCapacity())
	s.releaseSlot()
	s.factory.source.DoReset(s.sourceID)
	s.streamState = streamAfterRejectOrReset
	s.decode = drained
	s.endSpan(status)
}

// --- stream states (§4.3) ---

func streamBeforeBegin(s *Stream, f fabric.Frame) {
	if f.Type != fabric.TypeBegin {
		s.factory.source.DoReset(s.sourceID)
		s.streamState = streamAfterRejectOrReset
		return
	}
	s.sourceID = f.StreamID
	s.sourceCorrelationID = f.CorrelationID
	s.sourceRef = f.ReferenceID
	s.window = s.factory.slab.SlotCapacity()
	s.factory.source.DoWindow(s.sourceID, s.window)
	s.streamState = streamAfterBeginOrData
}

func streamAfterBeginOrData(s *Stream, f fabric.Frame) {
	switch f.Type {
	case fabric.TypeData:
		if !s.debitWindow(len(f.Payload)) {
			return
		}
		s.decodeBuffer(f.Payload)
		if s.slotIndex != slab.NoSlot {
			s.streamState = streamWithDeferredData
		}
	case fabric.TypeEnd:
		s.releaseSlot()
		s.factory.source.RemoveStream(s.sourceID)
		s.correlation.DoEnd(s.factory.supplyTarget)
		s.streamState = streamAfterEnd
	default:
		s.factory.source.DoReset(s.sourceID)
		s.streamState = streamAfterRejectOrReset
	}
}

func streamWithDeferredData(s *Stream, f fabric.Frame) {
	switch f.Type {
	case fabric.TypeData:
		if !s.debitWindow(len(f.Payload)) {
			return
		}
		if err := s.appendToSlot(f.Payload); err != nil {
			s.fatal(err)
			return
		}
		s.drainSlot()
		if s.slotIndex == slab.NoSlot {
			s.streamState = streamAfterBeginOrData
			if s.endDeferred {
				s.endDeferred = false
				s.factory.source.RemoveStream(s.sourceID)
				s.correlation.DoEnd(s.factory.supplyTarget)
				s.streamState = streamAfterEnd
			}
		}
	case fabric.TypeEnd:
		s.endDeferred = true
	default:
		s.factory.source.DoReset(s.sourceID)
		s.streamState = streamAfterRejectOrReset
	}
}

func streamAfterRejectOrReset(s *Stream, f fabric.Frame) {
	switch f.Type {
	case fabric.TypeData:
		s.factory.source.DoWindow(s.sourceID, len(f.Payload))
	case fabric.TypeEnd:
		s.factory.source.RemoveStream(s.sourceID)
		s.streamState = streamAfterEnd
	}
}

func streamAfterEnd(s *Stream, f fabric.Frame) {
	s.factory.source.DoReset(s.sourceID)
}
