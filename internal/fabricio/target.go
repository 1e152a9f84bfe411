package fabricio

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/panjf2000/gnet/v2"
	"github.com/reaktor-nukleus/http-source/internal/correlation"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

// initialCredit is the window an EchoStream grants a request the moment
// its throttle is installed. The demo target never actually runs short
// of buffer, so it behaves as an always-ready downstream application.
const initialCredit = 1 << 20

// EchoTarget is the demo's only downstream application: it answers every
// routed request with a 200 response whose body echoes the request body
// and, for upgraded requests, becomes a raw byte echo once the 101
// handshake response is written. It doubles as the reject path's
// loopback target (§4.5): the fabric.TargetSupplier resolves any name to
// this single instance in the demo.
type EchoTarget struct {
	name         string
	acceptor     *Acceptor
	correlations *correlation.Registry

	mu      sync.Mutex
	streams map[uint64]*echoStream
}

type echoStream struct {
	conn     gnet.Conn
	throttle fabric.Handler
	upgraded bool
	method   string
	path     string
	body     bytes.Buffer
}

// NewEchoTarget creates the demo target. correlations lets it map a
// request's target correlation id back to the originating connection via
// the acceptor, exactly as a real response-side implementation would use
// the correlation registry the specification describes (§6, §9).
func NewEchoTarget(name string, acceptor *Acceptor, correlations *correlation.Registry) *EchoTarget {
	return &EchoTarget{
		name:         name,
		acceptor:     acceptor,
		correlations: correlations,
		streams:      make(map[uint64]*echoStream),
	}
}

func (t *EchoTarget) Name() string { return t.name }

func (t *EchoTarget) DoHTTPBegin(targetID, targetRef, correlationID uint64, headers fabric.Headers) {
	corr, ok := t.correlations.Lookup(correlationID)
	var conn gnet.Conn
	if ok {
		conn, _ = t.acceptor.connFor(corr.SourceCorrelationID)
	}
	// The reject path never registers a correlation (it writes the
	// canned response using the source's own correlation id directly).
	if conn == nil {
		conn, _ = t.acceptor.connFor(correlationID)
	}

	es := &echoStream{conn: conn}
	for _, h := range headers {
		switch h[0] {
		case ":method":
			es.method = h[1]
		case ":path":
			es.path = h[1]
		case "upgrade":
			es.upgraded = true
		}
	}

	t.mu.Lock()
	t.streams[targetID] = es
	t.mu.Unlock()

	if es.upgraded && conn != nil {
		_ = conn.AsyncWrite([]byte("HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"), nil)
	}
}

func (t *EchoTarget) DoHTTPData(targetID uint64, payload []byte) {
	es := t.stream(targetID)
	if es == nil {
		return
	}
	if es.upgraded {
		if es.conn != nil {
			_ = es.conn.AsyncWrite(payload, nil)
		}
		return
	}
	es.body.Write(payload)
}

func (t *EchoTarget) DoHTTPEnd(targetID uint64) {
	t.mu.Lock()
	es := t.streams[targetID]
	delete(t.streams, targetID)
	t.mu.Unlock()
	if es == nil || es.upgraded || es.conn == nil {
		return
	}
	_ = es.conn.AsyncWrite(buildEchoResponse(es.method, es.path, es.body.Bytes()), nil)
}

func (t *EchoTarget) SetThrottle(targetID uint64, handler fabric.Handler) {
	es := t.stream(targetID)
	if es == nil {
		return
	}
	es.throttle = handler
	handler(fabric.Frame{Type: fabric.TypeWindow, StreamID: targetID, Update: initialCredit})
}

func (t *EchoTarget) RemoveThrottle(targetID uint64) {
	es := t.stream(targetID)
	if es == nil {
		return
	}
	es.throttle = nil
}

func (t *EchoTarget) stream(targetID uint64) *echoStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[targetID]
}

func buildEchoResponse(method, path string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n\r\n")
	if len(body) > 0 {
		b.Write(body)
	}
	return b.Bytes()
}

var _ fabric.Target = (*EchoTarget)(nil)
