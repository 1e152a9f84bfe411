package fabric

// Source is the inbound-side handle the core uses to grant credit, reset,
// and unregister an inbound stream. Implemented by the fabric transport,
// out of scope here (see package doc).
type Source interface {
	// Name is the routable name of the source, used as the reject target's
	// loopback name (§4.5 of the specification).
	Name() string
	DoWindow(sourceID uint64, update int)
	DoReset(sourceID uint64)
	RemoveStream(sourceID uint64)
}

// Target is the downstream-side handle the core opens, writes to, and
// throttles. Implemented by the fabric transport.
type Target interface {
	Name() string
	DoHTTPBegin(targetID, targetRef, correlationID uint64, headers Headers)
	DoHTTPData(targetID uint64, payload []byte)
	DoHTTPEnd(targetID uint64)
	SetThrottle(targetID uint64, handler Handler)
	RemoveThrottle(targetID uint64)
}

// StreamIDSupplier mints fresh outbound stream identifiers, one per
// opened target/reply stream.
type StreamIDSupplier func() uint64

// TargetSupplier resolves a target by routable name (the reject path
// reopens a stream against the source's own name as a loopback reply
// channel, per §4.5).
type TargetSupplier func(name string) Target
