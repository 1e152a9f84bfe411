package source

import (
	"strings"
	"testing"

	"github.com/reaktor-nukleus/http-source/internal/correlation"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"github.com/reaktor-nukleus/http-source/internal/route"
)

const testSourceRef = 1

// harness bundles a Factory with its collaborators and a shared id
// counter, wired the way cmd/nukleus-http-demo wires them in production.
type harness struct {
	factory *Factory
	src     *fakeSource
	target  *fakeTarget
	nextID  uint64
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		src:    &fakeSource{name: "src"},
		target: &fakeTarget{name: "target"},
	}
	routes := route.NewTable()
	routes.Add(route.Route{
		SourceRef:      testSourceRef,
		HeaderMatchers: map[string]string{":authority": "a"},
		Target:         h.target,
		TargetRef:      1,
	})
	correlations := correlation.NewRegistry()
	ids := func() uint64 {
		h.nextID++
		return h.nextID
	}
	h.factory = NewFactory(cfg, h.src, routes, correlations, ids, func(string) fabric.Target {
		return h.target
	})
	return h
}

func (h *harness) begin(sourceID uint64) fabric.Handler {
	handle := h.factory.NewStream()
	handle(fabric.Frame{Type: fabric.TypeBegin, StreamID: sourceID, ReferenceID: testSourceRef, CorrelationID: sourceID})
	return handle
}

func smallConfig() Config {
	return Config{SlotCapacity: 64, SlotCount: 4}
}

func TestPipelinedGET(t *testing.T) {
	h := newHarness(t, smallConfig())
	handle := h.begin(1)

	req := "GET / HTTP/1.1\r\nHost: a\r\n\r\nGET /x HTTP/1.1\r\nHost: a\r\n\r\n"
	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1, Payload: []byte(req)})

	if len(h.target.begins) != 2 {
		t.Fatalf("expected 2 BEGIN frames, got %d", len(h.target.begins))
	}
	if p, _ := headerValue(h.target.begins[0].headers, ":path"); p != "/" {
		t.Errorf("first request path = %q, want /", p)
	}
	if p, _ := headerValue(h.target.begins[1].headers, ":path"); p != "/x" {
		t.Errorf("second request path = %q, want /x", p)
	}
	if len(h.target.endedIDs) != 2 {
		t.Errorf("expected 2 HTTP-END, got %d", len(h.target.endedIDs))
	}
	if len(h.target.data) != 0 {
		t.Errorf("expected no HTTP-DATA for bodiless requests, got %d frames", len(h.target.data))
	}
	if h.src.resets != 0 {
		t.Errorf("expected no source reset, got %d", h.src.resets)
	}
}

func TestPostSplitAcrossDataFrames(t *testing.T) {
	h := newHarness(t, smallConfig())
	handle := h.begin(1)

	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1,
		Payload: []byte("POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhel")})

	if len(h.target.begins) != 1 {
		t.Fatalf("expected 1 BEGIN, got %d", len(h.target.begins))
	}
	targetID := h.target.begins[0].targetID
	if h.target.throttle == nil {
		t.Fatalf("expected throttle to be installed")
	}
	if len(h.target.data) != 0 {
		t.Fatalf("expected body buffered (no target credit yet), got %d frames", len(h.target.data))
	}

	h.target.grantWindow(targetID, 100)
	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1, Payload: []byte("lo")})

	if got := string(h.target.body()); got != "hello" {
		t.Fatalf("target body = %q, want hello", got)
	}
	if len(h.target.endedIDs) != 1 || h.target.endedIDs[0] != targetID {
		t.Fatalf("expected HTTP-END for targetID %d, got %v", targetID, h.target.endedIDs)
	}
	for _, w := range h.src.windows {
		if w < 0 {
			t.Fatalf("negative source window credit granted: %d", w)
		}
	}
}

// TestHeadersSplitAcrossThreeFrames guards against re-buffering bytes
// already resident in the stream's slot: a header block arriving in 3+
// chunks forces drainSlot to re-scan the slot's own buffer more than
// once before the terminating CRLFCRLF shows up.
func TestHeadersSplitAcrossThreeFrames(t *testing.T) {
	h := newHarness(t, Config{SlotCapacity: 64, SlotCount: 4})
	handle := h.begin(1)

	req := "GET /foo HTTP/1.1\r\nHost: a\r\nX-Test: 1\r\n\r\n"
	if len(req) < 30 {
		t.Fatalf("fixture too short to exercise a 3-way split")
	}
	chunks := [][]byte{[]byte(req[:15]), []byte(req[15:30]), []byte(req[30:])}

	for _, c := range chunks {
		handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1, Payload: c})
	}

	if len(h.target.begins) != 1 {
		t.Fatalf("expected 1 BEGIN once the split header block completes, got %d", len(h.target.begins))
	}
	if p, _ := headerValue(h.target.begins[0].headers, ":path"); p != "/foo" {
		t.Fatalf("path = %q, want /foo", p)
	}
	if h.src.resets != 0 {
		t.Fatalf("expected no reset from re-buffering already-resident bytes, got %d", h.src.resets)
	}
	if len(h.target.endedIDs) != 1 {
		t.Fatalf("expected HTTP-END for the bodiless request, got %d", len(h.target.endedIDs))
	}
}

func TestHeadersTooLarge(t *testing.T) {
	h := newHarness(t, Config{SlotCapacity: 16, SlotCount: 2})
	reject := &fakeTarget{name: "src"}
	h.factory.supplyTarget = func(string) fabric.Target { return reject }
	handle := h.begin(1)

	// Exactly one slot's worth of header bytes, no CRLFCRLF terminator:
	// consumes the entire initial source window (== slot capacity) while
	// leaving the decoder still waiting for the end of headers.
	huge := strings.Repeat("x", 16)
	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1, Payload: []byte(huge)})

	if h.src.resets != 1 {
		t.Fatalf("expected source reset, got %d resets", h.src.resets)
	}
	if len(reject.begins) != 1 {
		t.Fatalf("expected reject target BEGIN, got %d", len(reject.begins))
	}
	rejectID := reject.begins[0].targetID
	reject.grantWindow(rejectID, 1024)
	if string(reject.body()) != "HTTP/1.1 431 Request Header Fields Too Large\r\n\r\n" {
		t.Fatalf("unexpected reject body: %q", reject.body())
	}
}

func TestNoMatchingRoute(t *testing.T) {
	h := newHarness(t, smallConfig())
	reject := &fakeTarget{name: "src"}
	h.factory.supplyTarget = func(string) fabric.Target { return reject }
	handle := h.begin(1)

	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1,
		Payload: []byte("GET / HTTP/1.1\r\nHost: unknown\r\n\r\n")})

	if h.src.resets != 1 {
		t.Fatalf("expected source reset on no-route, got %d", h.src.resets)
	}
	if len(reject.begins) != 1 {
		t.Fatalf("expected reject target BEGIN, got %d", len(reject.begins))
	}
	rejectID := reject.begins[0].targetID
	reject.grantWindow(rejectID, 1024)
	if string(reject.body()) != "HTTP/1.1 404 Not Found\r\n\r\n" {
		t.Fatalf("unexpected reject body: %q", reject.body())
	}
}

func TestUpgradePassthrough(t *testing.T) {
	// A dedicated, larger slot capacity: the request line plus upgrade
	// headers alone run past smallConfig's 64-byte window before a single
	// body byte is even considered.
	h := newHarness(t, Config{SlotCapacity: 128, SlotCount: 4})
	handle := h.begin(1)

	req := "GET / HTTP/1.1\r\nHost: a\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\nRAWBYTES"
	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1, Payload: []byte(req)})

	if len(h.target.begins) != 1 {
		t.Fatalf("expected 1 BEGIN, got %d", len(h.target.begins))
	}
	if _, ok := headerValue(h.target.begins[0].headers, "upgrade"); !ok {
		t.Fatalf("expected upgrade header on target BEGIN")
	}
	if len(h.target.endedIDs) != 0 {
		t.Fatalf("upgrade stream must never emit HTTP-END, got %v", h.target.endedIDs)
	}
	targetID := h.target.begins[0].targetID

	// The raw body bytes were buffered since no target credit had arrived
	// yet; this grant drains them straight through.
	h.target.grantWindow(targetID, 8)
	if got := string(h.target.body()); got != "RAWBYTES" {
		t.Fatalf("post-upgrade body = %q, want RAWBYTES", got)
	}

	// A grant far larger than whatever source window remains forces
	// ensureSourceWindow to catch the source window up to the slab's full
	// capacity, landing exactly on the "slot empty, window caught up"
	// condition that flips the throttle into 1:1 propagation mode.
	h.target.grantWindow(targetID, 1_000_000)

	// Now every further target credit is mirrored straight to the source,
	// one for one, instead of being absorbed by ensureSourceWindow.
	before := len(h.src.windows)
	h.target.grantWindow(targetID, 5)
	if got := len(h.src.windows); got != before+1 || h.src.windows[got-1] != 5 {
		t.Fatalf("expected propagateWindow to grant the source credit 1:1, got windows=%v", h.src.windows)
	}
	if last := h.src.windows[len(h.src.windows)-1]; last != 5 {
		t.Fatalf("expected 1:1 propagated credit of 5, got %d", last)
	}
}

func TestFlowControlledBody(t *testing.T) {
	h := newHarness(t, smallConfig())
	handle := h.begin(1)

	body := "0123456789ab" // 12 bytes
	req := "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 12\r\n\r\n" + body
	handle(fabric.Frame{Type: fabric.TypeData, StreamID: 1, Payload: []byte(req)})

	targetID := h.target.begins[0].targetID
	if len(h.target.data) != 0 {
		t.Fatalf("expected no data forwarded before any target credit")
	}

	h.target.grantWindow(targetID, 4)
	if got := string(h.target.body()); got != "0123" {
		t.Fatalf("first flow-controlled chunk = %q, want 0123", got)
	}
	if len(h.target.endedIDs) != 0 {
		t.Fatalf("body incomplete, should not have ended yet")
	}

	h.target.grantWindow(targetID, 8)
	if got := string(h.target.body()); got != body {
		t.Fatalf("final body = %q, want %q", got, body)
	}
	if len(h.target.endedIDs) != 1 {
		t.Fatalf("expected HTTP-END once body complete")
	}
}
