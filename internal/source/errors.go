package source

import "errors"

// ErrNoSlot indicates the slab had no free slot to hand out, or a
// stream's already-held slot had no more room for a tail that needed
// buffering (§4.2, §4.6).
var ErrNoSlot = errors.New("source: no free slab slot")

// ErrStreamReset is logged when a stream is reset rather than continued
// because a DATA frame exceeded its granted window or because the
// request was rejected with a canned response (§4.3, §7). Slab
// exhaustion is logged as ErrNoSlot instead, and a reset for an
// unexpected frame type is not logged.
var ErrStreamReset = errors.New("source: stream reset")
