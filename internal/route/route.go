// Package route implements the read-only route table the source-input
// stream consults to pick a downstream target for a decoded request.
// Grounded on the original nukleus-http Route.headersMatch predicate
// (referenced via the static import in SourceInputStreamFactory.java)
// and on the teacher's string-keyed, reflection-free matching style in
// pkg/celeris/router.go.
package route

import (
	"sync"

	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

// Route binds a sourceRef and a set of header predicates to a downstream
// target. The first Route in a sourceRef's list whose HeaderMatchers all
// match the decoded request headers wins.
type Route struct {
	SourceRef      uint64
	HeaderMatchers map[string]string
	Target         fabric.Target
	TargetRef      uint64
}

// Matches reports whether every configured header matcher is satisfied
// by headers. A Route with no matchers matches unconditionally, acting
// as a catch-all/default route.
func (r Route) Matches(headers fabric.Headers) bool {
	if len(r.HeaderMatchers) == 0 {
		return true
	}
	for name, want := range r.HeaderMatchers {
		got, ok := lookup(headers, name)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func lookup(headers fabric.Headers, name string) (string, bool) {
	for _, h := range headers {
		if h[0] == name {
			return h[1], true
		}
	}
	return "", false
}

// Table is a routable's ordered, per-sourceRef route list.
type Table struct {
	mu     sync.RWMutex
	routes map[uint64][]Route
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{routes: make(map[uint64][]Route)}
}

// Add appends route to the list for its SourceRef, preserving insertion
// order so first-match semantics are deterministic.
func (t *Table) Add(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[r.SourceRef] = append(t.routes[r.SourceRef], r)
}

// Routes returns the ordered route list for sourceRef; this is the route
// lookup the source factory calls for each decoded request.
func (t *Table) Routes(sourceRef uint64) []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.routes[sourceRef]
}

// Resolve returns the first route under sourceRef whose matchers accept
// headers, mirroring the original's resolveTarget/headersMatch pairing.
func Resolve(routes []Route, headers fabric.Headers) (Route, bool) {
	for _, r := range routes {
		if r.Matches(headers) {
			return r, true
		}
	}
	return Route{}, false
}
