package source

import (
	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"github.com/reaktor-nukleus/http-source/internal/slab"
)

// throttleIgnoreWindow is active during header decode and after a body
// has fully drained: only RESET is honored (§4.4).
func throttleIgnoreWindow(s *Stream, f fabric.Frame) {
	if f.Type == fabric.TypeReset {
		s.factory.source.DoReset(s.sourceID)
		s.releaseSlot()
	}
}

// throttleForHttpData replenishes availableTargetWindow as the target
// grants credit, drains any buffered body, and mints the source just
// enough window to keep up without admitting more than the slab/target
// can currently absorb (§4.4).
func throttleForHttpData(s *Stream, f fabric.Frame) {
	switch f.Type {
	case fabric.TypeWindow:
		s.availableTargetWindow += f.Update
		if s.slotIndex != slab.NoSlot {
			s.drainSlot()
		}
		s.ensureSourceWindow()
	case fabric.TypeReset:
		s.factory.source.DoReset(s.sourceID)
		s.releaseSlot()
	}
}

// throttleForHttpDataAfterUpgrade behaves like throttleForHttpData during
// the initial post-upgrade drain, then switches to 1:1 propagation once
// the slot has emptied and the source has caught up to the target's
// credit (§4.4).
func throttleForHttpDataAfterUpgrade(s *Stream, f fabric.Frame) {
	switch f.Type {
	case fabric.TypeWindow:
		s.availableTargetWindow += f.Update
		if s.slotIndex != slab.NoSlot {
			s.drainSlot()
		}
		s.ensureSourceWindow()
		if s.slotIndex == slab.NoSlot && s.window == min(s.availableTargetWindow, s.factory.slab.SlotCapacity()) {
			s.throttleState = throttlePropagateWindow
		}
	case fabric.TypeReset:
		s.factory.source.DoReset(s.sourceID)
		s.releaseSlot()
	}
}

// throttlePropagateWindow is the steady-state post-upgrade pipe: every
// byte of target credit is mirrored 1:1 to the source, unbounded by the
// slab slot (§4.4).
func throttlePropagateWindow(s *Stream, f fabric.Frame) {
	switch f.Type {
	case fabric.TypeWindow:
		s.availableTargetWindow += f.Update
		s.window += f.Update
		s.factory.source.DoWindow(s.sourceID, f.Update)
	case fabric.TypeReset:
		s.factory.source.DoReset(s.sourceID)
		s.releaseSlot()
	}
}
