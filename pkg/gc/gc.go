// Package gc implements the VM's stop-the-world mark-and-sweep
// collector. A single boolean mark bit per heap object suffices
// because collection never interleaves with mutation: the world
// really is stopped for the duration of a cycle.
package gc

import (
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/intern"
)

// Traceable is implemented by every heap-allocated type the collector
// can visit: object.Object, object.StructType, object.StructInstance,
// bytecode.Function/Closure/Upvalue. Children returns []interface{}
// rather than []value.Value so GC-internal types (like *Upvalue, which
// is not itself a language-level value) can appear in a parent's
// reference list without this package, or theirs, needing to import
// each other.
type Traceable interface {
	Marked() bool
	SetMarked(bool)
	Children() []interface{}
}

// RootProvider is implemented by the VM: it knows what's currently
// live on the operand stack, in call frames, in globals, in open
// upvalues, and in the coroutine executor. The collector has no
// knowledge of any of those types; it only asks for the root set.
type RootProvider interface {
	Roots() []interface{}
}

// Config bounds collection frequency: the byte-accounting triggering
// policy.
type Config struct {
	InitialThreshold int
	MinThreshold     int
	GrowthFactor     float64
}

// DefaultConfig returns a sane starting threshold.
func DefaultConfig() Config {
	return Config{
		InitialThreshold: 1 << 20, // 1 MiB
		MinThreshold:     1 << 16,
		GrowthFactor:     2.0,
	}
}

// Collector owns the allocation list, the byte-accounting threshold
// policy, and a reference to the VM's string intern pool (swept in the
// same phase as every other heap object).
type Collector struct {
	cfg    Config
	pool   *intern.Pool
	log    *zap.Logger
	roots  RootProvider
	allocs []Traceable

	bytesAllocated int
	threshold      int

	Collections int
	LastFreed   int
	LastLive    int
}

// New creates a collector. roots is consulted at the start of every
// cycle; pool is the string intern pool swept alongside heap objects.
func New(cfg Config, pool *intern.Pool, roots RootProvider, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{cfg: cfg, pool: pool, roots: roots, log: log, threshold: cfg.InitialThreshold}
}

// Register adds a newly allocated object to the collector's tracking
// list and its estimated size to the byte-accounting total. Objects
// allocated during a mark phase are never created by this collector
// (marking is not re-entrant: allocation only happens between ticks),
// so a freshly registered object always starts unmarked and is safe to
// sweep on the very next cycle if it turns out unreachable.
func (c *Collector) Register(t Traceable, size int) {
	c.allocs = append(c.allocs, t)
	c.bytesAllocated += size
}

// MaybeCollect runs a cycle if accumulated allocation has crossed the
// threshold.
func (c *Collector) MaybeCollect() {
	if c.bytesAllocated < c.threshold {
		return
	}
	c.Collect()
}

// Collect forces a full mark-and-sweep cycle regardless of the
// threshold. Exposed for tests and explicit memory-pressure hooks
// (the language-level `collect()` builtin).
func (c *Collector) Collect() {
	c.log.Debug("gc cycle starting",
		zap.Int("tracked", len(c.allocs)),
		zap.Int("bytesAllocated", c.bytesAllocated))

	c.mark()
	freed, live := c.sweep()

	liveBytes := live * averageObjectSize
	c.threshold = int(float64(liveBytes) * c.cfg.GrowthFactor)
	if c.threshold < c.cfg.MinThreshold {
		c.threshold = c.cfg.MinThreshold
	}
	c.bytesAllocated = liveBytes
	c.Collections++
	c.LastFreed = freed
	c.LastLive = live

	c.log.Info("gc cycle complete",
		zap.Int("freed", freed),
		zap.Int("live", live),
		zap.Int("nextThreshold", c.threshold))
}

// averageObjectSize is a rough per-object byte estimate used only to
// drive the threshold growth heuristic; it need not be exact.
const averageObjectSize = 64

func (c *Collector) mark() {
	if c.pool != nil {
		c.pool.MarkSweepBegin()
	}
	var worklist []interface{}
	if c.roots != nil {
		worklist = append(worklist, c.roots.Roots()...)
	}
	for len(worklist) > 0 {
		n := len(worklist) - 1
		item := worklist[n]
		worklist = worklist[:n]
		c.markOne(item, &worklist)
	}
}

func (c *Collector) markOne(item interface{}, worklist *[]interface{}) {
	if item == nil {
		return
	}
	v, ok := item.(Traceable)
	if !ok {
		// Primitive value.Value kinds (Nil, Bool, Integer, Number)
		// carry no outgoing references and aren't heap-allocated.
		return
	}
	if v.Marked() {
		return
	}
	v.SetMarked(true)
	*worklist = append(*worklist, v.Children()...)
}

func (c *Collector) sweep() (freed, live int) {
	kept := c.allocs[:0]
	for _, obj := range c.allocs {
		if obj.Marked() {
			obj.SetMarked(false)
			kept = append(kept, obj)
			live++
		} else {
			freed++
		}
	}
	c.allocs = kept

	if c.pool != nil {
		sFreed, sLive := c.pool.Sweep()
		freed += sFreed
		live += sLive
	}
	return freed, live
}

// Stats reports cumulative and point-in-time collector state, used by
// the `smogvm gc-stats` subcommand.
type Stats struct {
	Collections int
	LastFreed   int
	LastLive    int
	Tracked     int
	Threshold   int
}

func (c *Collector) Stats() Stats {
	return Stats{
		Collections: c.Collections,
		LastFreed:   c.LastFreed,
		LastLive:    c.LastLive,
		Tracked:     len(c.allocs),
		Threshold:   c.threshold,
	}
}
