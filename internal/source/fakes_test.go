package source

import "github.com/reaktor-nukleus/http-source/internal/fabric"

// fakeSource is a minimal recording fabric.Source used by every test in
// this package, in the teacher's hand-rolled-test-double style
// (pkg/celeris has no mock-generation library; neither does this test).
type fakeSource struct {
	name    string
	windows []int
	resets  int
	removed bool
}

func (f *fakeSource) Name() string                        { return f.name }
func (f *fakeSource) DoWindow(sourceID uint64, update int) { f.windows = append(f.windows, update) }
func (f *fakeSource) DoReset(sourceID uint64)              { f.resets++ }
func (f *fakeSource) RemoveStream(sourceID uint64)         { f.removed = true }

type beginCall struct {
	targetID      uint64
	targetRef     uint64
	correlationID uint64
	headers       fabric.Headers
}

// fakeTarget records every call the core makes against a downstream
// target and lets a test drive WINDOW/RESET frames back through the
// throttle it captures.
type fakeTarget struct {
	name string

	begins   []beginCall
	data     [][]byte
	endedIDs []uint64

	throttle        fabric.Handler
	removedThrottle bool
}

func (t *fakeTarget) Name() string { return t.name }

func (t *fakeTarget) DoHTTPBegin(targetID, targetRef, correlationID uint64, headers fabric.Headers) {
	t.begins = append(t.begins, beginCall{targetID, targetRef, correlationID, headers})
}

func (t *fakeTarget) DoHTTPData(targetID uint64, payload []byte) {
	cp := append([]byte(nil), payload...)
	t.data = append(t.data, cp)
}

func (t *fakeTarget) DoHTTPEnd(targetID uint64) {
	t.endedIDs = append(t.endedIDs, targetID)
}

func (t *fakeTarget) SetThrottle(targetID uint64, handler fabric.Handler) {
	t.throttle = handler
}

func (t *fakeTarget) RemoveThrottle(targetID uint64) {
	t.removedThrottle = true
}

func (t *fakeTarget) grantWindow(targetID uint64, n int) {
	t.throttle(fabric.Frame{Type: fabric.TypeWindow, StreamID: targetID, Update: n})
}

func headerValue(headers fabric.Headers, name string) (string, bool) {
	for _, h := range headers {
		if h[0] == name {
			return h[1], true
		}
	}
	return "", false
}

func (t *fakeTarget) body() []byte {
	var all []byte
	for _, d := range t.data {
		all = append(all, d...)
	}
	return all
}
