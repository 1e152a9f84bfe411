package source

import (
	"log"

	"github.com/reaktor-nukleus/http-source/internal/correlation"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"github.com/reaktor-nukleus/http-source/internal/route"
	"github.com/reaktor-nukleus/http-source/internal/slab"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Factory is the SourceInputStreamFactory: stateless except for the
// collaborators shared across every stream it creates, plus the single
// scratch region slot compaction borrows (§4.6).
type Factory struct {
	source       fabric.Source
	routes       *route.Table
	correlations *correlation.Registry
	slab         *slab.Slab
	nextID       fabric.StreamIDSupplier
	supplyTarget fabric.TargetSupplier
	logger       *log.Logger

	tempSlot []byte
	tracer   trace.Tracer
}

// NewFactory wires a Factory from its collaborators. ids mints fresh
// outbound stream identifiers (reused here for reply stream ids and
// target correlation ids: the specification treats both as opaque
// fabric-minted identifiers, so one supplier serves both). targets
// resolves a routable name to its fabric.Target, used both for routed
// requests and for the reject path's loopback target.
func NewFactory(cfg Config, src fabric.Source, routes *route.Table, correlations *correlation.Registry, ids fabric.StreamIDSupplier, targets fabric.TargetSupplier) *Factory {
	cfg.Validate()
	return &Factory{
		source:       src,
		routes:       routes,
		correlations: correlations,
		slab:         slab.New(cfg.SlotCount, cfg.SlotCapacity),
		nextID:       ids,
		supplyTarget: targets,
		logger:       cfg.Logger,
		tempSlot:     make([]byte, cfg.SlotCapacity),
		tracer:       otel.Tracer("nukleus-http-source"),
	}
}

// NewStream creates a fresh SourceInputStream and returns the
// fabric.Handler the fabric dispatches inbound frames for this
// connection to. The stream starts in streamBeforeBegin awaiting the
// initial BEGIN frame.
func (f *Factory) NewStream() fabric.Handler {
	s := &Stream{
		factory:       f,
		slotIndex:     slab.NoSlot,
		streamState:   streamBeforeBegin,
		throttleState: throttleIgnoreWindow,
		decode:        decodeHttpBegin,
		correlation:   correlation.NewState(f.nextID(), ""),
	}
	return s.Handle
}

// compact moves a stream's unconsumed slot content down to offset 0 via
// the factory's scratch region, so appendToSlot never performs an
// overlapping copy (§9).
func (f *Factory) compact(s *Stream) {
	if s.slotIndex == slab.NoSlot || s.slotOffset == 0 {
		return
	}
	buf := f.slab.Buffer(s.slotIndex)
	n := s.slotPosition - s.slotOffset
	scratch := f.tempSlot[:n]
	copy(scratch, buf[s.slotOffset:s.slotPosition])
	copy(buf, scratch)
	s.slotOffset = 0
	s.slotPosition = n
}
