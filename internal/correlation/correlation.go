// Package correlation implements the handle shared between a source's
// inbound (request) stream and its paired source-output-established
// (response) stream, so the response side knows when it may end its
// reply. The response side itself is out of scope (§1 of the
// specification); this package only carries the shared state, grounded
// on the original ServerAcceptState.java.
package correlation

import (
	"sync"

	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

// Kind identifies what a Correlation resolves to on the response side.
// The core only ever produces OutputEstablished correlations; the type
// is carried to mirror the original's discriminated Correlation<T>.
type Kind int

const (
	KindOutputEstablished Kind = iota
)

// State is the mutable state shared across every pipelined request on
// one source connection — the Go analogue of ServerAcceptState. Multiple
// requests share one State; PendingRequests counts responses still owed
// so the last one can trigger doEnd.
type State struct {
	mu              sync.Mutex
	ReplyStreamID   uint64
	TargetName      string
	Window          int
	PendingRequests int
	EndRequested    bool
}

// NewState creates the response-side state for a freshly-opened reply
// stream against targetName.
func NewState(replyStreamID uint64, targetName string) *State {
	return &State{ReplyStreamID: replyStreamID, TargetName: targetName}
}

// Retarget updates which downstream target a subsequent pipelined
// request on the same source connection is bound to.
func (s *State) Retarget(targetName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TargetName = targetName
}

// BeginRequest increments the outstanding-response counter for a newly
// routed request sharing this correlation.
func (s *State) BeginRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingRequests++
}

// DoEnd ends the reply stream immediately if no response is still
// outstanding, otherwise latches EndRequested so the response side ends
// once it finishes draining the last one — this is what prevents the
// final response of a pipelined connection from being dropped (§9).
func (s *State) DoEnd(supplyTarget fabric.TargetSupplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PendingRequests == 0 {
		if t := supplyTarget(s.TargetName); t != nil {
			t.DoHTTPEnd(s.ReplyStreamID)
			t.RemoveThrottle(s.ReplyStreamID)
		}
		return
	}
	s.EndRequested = true
}

// Correlation is the handle registered under a target correlation id so
// the response side can retrieve shared request/response state when the
// target emits its reply BEGIN.
type Correlation struct {
	SourceCorrelationID uint64
	SourceRoutable      string
	Kind                Kind
	State               *State
}

// New creates a Correlation for the request currently being routed.
func New(sourceCorrelationID uint64, sourceRoutable string, state *State) *Correlation {
	return &Correlation{
		SourceCorrelationID: sourceCorrelationID,
		SourceRoutable:      sourceRoutable,
		Kind:                KindOutputEstablished,
		State:               state,
	}
}

// Registry is the shared, single-threaded mapping from target
// correlation id to Correlation, updated as each request opens a target
// stream (§6's correlateNew).
type Registry struct {
	mu      sync.Mutex
	entries map[uint64]*Correlation
}

// NewRegistry creates an empty correlation registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]*Correlation)}
}

// CorrelateNew registers correlation under targetCorrelationID.
func (r *Registry) CorrelateNew(targetCorrelationID uint64, c *Correlation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[targetCorrelationID] = c
}

// Lookup retrieves a previously registered correlation, if any.
func (r *Registry) Lookup(targetCorrelationID uint64) (*Correlation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[targetCorrelationID]
	return c, ok
}
