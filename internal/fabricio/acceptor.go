// Package fabricio is the demo-only fabric substrate: a gnet-driven
// acceptor that stands in for the out-of-scope fabric transport,
// translating raw TCP bytes into the BEGIN/DATA/END frames
// internal/source consumes, and a companion echo target that answers
// requests so the wiring is end-to-end runnable. None of this package is
// part of the specified core; it exists to give cmd/nukleus-http-demo
// something real to run. Grounded on the teacher's gnet.EventHandler
// wiring in internal/h1/server.go (OnBoot/OnOpen/OnClose/OnTraffic,
// per-connection context storage, silent gnet logger).
package fabricio

import (
	"sync"

	"github.com/panjf2000/gnet/v2"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

// Acceptor is the fabric.Source every source-input stream in the demo is
// bound to: one Acceptor per listening socket, dispatching DoWindow/
// DoReset/RemoveStream to the gnet.Conn that owns sourceID.
type Acceptor struct {
	name string

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]gnet.Conn
}

// NewAcceptor creates an Acceptor identified by name (used as the reject
// path's loopback target name, §4.5).
func NewAcceptor(name string) *Acceptor {
	return &Acceptor{name: name, conns: make(map[uint64]gnet.Conn)}
}

func (a *Acceptor) Name() string { return a.name }

// Register assigns a fresh source id to a newly accepted connection.
func (a *Acceptor) Register(c gnet.Conn) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.conns[id] = c
	return id
}

func (a *Acceptor) connFor(sourceID uint64) (gnet.Conn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.conns[sourceID]
	return c, ok
}

// DoWindow is a no-op: gnet already delivers all buffered bytes from one
// read, so there is no read-side backpressure to lift in this substrate.
func (a *Acceptor) DoWindow(sourceID uint64, update int) {}

// DoReset closes the connection carrying sourceID.
func (a *Acceptor) DoReset(sourceID uint64) {
	if c, ok := a.connFor(sourceID); ok {
		_ = c.Close()
	}
}

// RemoveStream forgets sourceID's connection mapping.
func (a *Acceptor) RemoveStream(sourceID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, sourceID)
}

// NextStreamID mints ids for outbound target/reply streams (§4.6's
// StreamIDSupplier), sharing the same counter space as source ids since
// this demo has no other consumer of the id space.
func (a *Acceptor) NextStreamID() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	return a.nextID
}

var _ fabric.Source = (*Acceptor)(nil)
