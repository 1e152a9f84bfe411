package fabricio

import (
	"context"
	"log"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"github.com/reaktor-nukleus/http-source/internal/source"
)

// Config configures the demo gnet listener, mirroring the fields the
// teacher's internal/h1.Server.Config exposes.
type Config struct {
	Addr         string
	Multicore    bool
	NumEventLoop int
	ReusePort    bool
	Logger       *log.Logger
}

// Server implements gnet.EventHandler, feeding every accepted
// connection's bytes into a fresh internal/source stream and tearing it
// down on close.
type Server struct {
	gnet.BuiltinEventEngine

	acceptor *Acceptor
	factory  *source.Factory
	sourceRef uint64
	logger   *log.Logger
	cfg      Config

	ctx     context.Context
	cancel  context.CancelFunc
	engine  gnet.Engine
	started bool
}

type connCtx struct {
	sourceID uint64
	handle   fabric.Handler
}

// NewServer builds a Server around a pre-wired source.Factory and its
// Acceptor. sourceRef is the routing key every accepted connection's
// synthetic BEGIN frame carries (§3's sourceRef, matched against
// route.Table entries).
func NewServer(ctx context.Context, cfg Config, acceptor *Acceptor, factory *source.Factory, sourceRef uint64) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		acceptor:  acceptor,
		factory:   factory,
		sourceRef: sourceRef,
		logger:    cfg.Logger,
		cfg:       cfg,
		ctx:       serverCtx,
		cancel:    cancel,
	}
}

// Start runs the gnet event loop in the background.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.cfg.Multicore),
		gnet.WithReusePort(s.cfg.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTCPKeepAlive(time.Minute),
		gnet.WithLogger(silentGnetLogger{}),
	}
	if s.cfg.NumEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.cfg.NumEventLoop))
	}

	s.logger.Printf("nukleus-http source listening on %s", s.cfg.Addr)
	go func() {
		_ = gnet.Run(s, "tcp://"+s.cfg.Addr, options...)
	}()
	return nil
}

// Stop gracefully stops the gnet engine.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if !s.started {
		return nil
	}
	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	return s.engine.Stop(stopCtx)
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.started = true
	return gnet.None
}

// OnOpen registers the connection with the acceptor and starts a fresh
// SourceInputStream, immediately delivering its synthetic BEGIN frame —
// the demo has no separate accept-time handshake, so opening the TCP
// connection is the BEGIN event.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	id := s.acceptor.Register(c)
	handle := s.factory.NewStream()
	c.SetContext(&connCtx{sourceID: id, handle: handle})
	handle(fabric.Frame{Type: fabric.TypeBegin, StreamID: id, ReferenceID: s.sourceRef, CorrelationID: id})
	return nil, gnet.None
}

// OnClose delivers a synthetic END so the stream tears down cleanly.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	if cc, ok := c.Context().(*connCtx); ok {
		cc.handle(fabric.Frame{Type: fabric.TypeEnd, StreamID: cc.sourceID})
	}
	return gnet.None
}

// OnTraffic forwards the buffered bytes as one DATA frame.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	cc, ok := c.Context().(*connCtx)
	if !ok {
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil || len(buf) == 0 {
		return gnet.None
	}
	payload := make([]byte, len(buf))
	copy(payload, buf)
	cc.handle(fabric.Frame{Type: fabric.TypeData, StreamID: cc.sourceID, Payload: payload})
	return gnet.None
}

type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(string, ...any) {}
func (silentGnetLogger) Infof(string, ...any)  {}
func (silentGnetLogger) Warnf(string, ...any)  {}
func (silentGnetLogger) Errorf(string, ...any) {}
func (silentGnetLogger) Fatalf(string, ...any) {}
