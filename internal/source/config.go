package source

import (
	"io"
	"log"
)

// Config bounds the resources a Factory's Slab allocates, the
// same clamp-and-default style as the teacher's pkg/celeris Config.
type Config struct {
	// SlotCapacity is the maximum size, in bytes, of a request's header
	// block and the per-stream deferred-body buffer (C in the
	// specification).
	SlotCapacity int

	// SlotCount bounds the number of concurrently buffered partial
	// requests across all streams sharing one factory (N).
	SlotCount int

	// Logger receives per-stream diagnostics (resets, slab exhaustion).
	// Every stream reaches it through its factory.
	Logger *log.Logger
}

const (
	defaultSlotCapacity = 8192
	defaultSlotCount    = 64
)

// newSilentLogger creates a logger that discards all output, for
// benchmarks and tests that don't want stream diagnostics on stderr.
func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns reasonable defaults for standalone use.
func DefaultConfig() Config {
	return Config{
		SlotCapacity: defaultSlotCapacity,
		SlotCount:    defaultSlotCount,
		Logger:       newSilentLogger(),
	}
}

// Validate clamps invalid fields to their defaults rather than failing,
// matching pkg/celeris.Config.Validate's tolerance of a zero-value caller.
func (c *Config) Validate() {
	if c.SlotCapacity <= 0 {
		c.SlotCapacity = defaultSlotCapacity
	}
	if c.SlotCount <= 0 {
		c.SlotCount = defaultSlotCount
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}
