// Package config loads the tunables that govern VM, GC, and executor
// sizing. Values are read from an optional TOML file; anything the file
// omits falls back to Default's values.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config holds the runtime-tunable knobs for a VM instance.
//
// These are deliberately not process-wide: each embedded VM gets its own
// Config, so multiple VMs in one process never fight over global state.
type Config struct {
	// InitialStackSize is the starting capacity of the operand stack.
	// The stack grows by doubling past this point.
	InitialStackSize int `toml:"initial_stack_size"`

	// MaxFrameDepth bounds call-frame recursion; exceeding it is a
	// StackOverflow runtime error.
	MaxFrameDepth int `toml:"max_frame_depth"`

	// InitialGCThreshold is the byte count that triggers the first
	// collection cycle.
	InitialGCThreshold int64 `toml:"initial_gc_threshold"`

	// GCGrowthFactor multiplies live bytes to compute the next
	// threshold after a collection.
	GCGrowthFactor float64 `toml:"gc_growth_factor"`

	// MinGCThreshold floors the threshold so a mostly-empty heap
	// doesn't collect on every other allocation.
	MinGCThreshold int64 `toml:"min_gc_threshold"`

	// ReadyQueueCapacity is read from the file but not passed to the
	// executor; its FIFO ready queue grows on demand.
	ReadyQueueCapacity int `toml:"ready_queue_capacity"`

	// PrototypeHopLimit bounds prototype-chain traversal so a cyclic
	// prototype graph can't hang property lookup.
	PrototypeHopLimit int `toml:"prototype_hop_limit"`
}

// Default returns the baseline tunables used when no config file is
// present.
func Default() Config {
	return Config{
		InitialStackSize:   1024,
		MaxFrameDepth:      1024,
		InitialGCThreshold: 1 << 20, // 1 MiB
		GCGrowthFactor:     2.0,
		MinGCThreshold:     1 << 16,
		ReadyQueueCapacity: 64,
		PrototypeHopLimit:  1000,
	}
}

// Load reads a TOML config file at path, filling in defaults for any
// field the file doesn't set. A missing file is not an error — Default
// is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}

	return cfg, nil
}
