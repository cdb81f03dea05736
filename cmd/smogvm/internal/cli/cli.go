// Package cli wires the smogvm subcommands on top of cobra: run,
// compile, disassemble, repl, gc-stats.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/bytecode"
	"github.com/kristofer/smogvm/pkg/compiler"
	"github.com/kristofer/smogvm/pkg/config"
	"github.com/kristofer/smogvm/pkg/gc"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/parser"
	"github.com/kristofer/smogvm/pkg/value"
	"github.com/kristofer/smogvm/pkg/vm"
)

// NewRootCommand builds the smogvm command tree.
func NewRootCommand(log *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "smogvm",
		Short:         "smogvm runs and inspects compiled smog scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCommand(log),
		newCompileCommand(log),
		newDisassembleCommand(),
		newReplCommand(log),
		newGCStatsCommand(log),
	)
	return root
}

// loadChunk compiles a .smog source file or decodes a .sgc bytecode
// archive, dispatching on the file extension.
func loadChunk(path string, pool *intern.Pool) (*bytecode.Chunk, error) {
	if filepath.Ext(path) == ".sgc" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		return bytecode.Decode(f, func(b []byte) value.Value { return pool.Intern(b) })
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	program, errs := parser.ParseProgram(string(src))
	if len(errs) > 0 {
		return nil, fmt.Errorf("parse error: %s", errs[0].Error())
	}
	c := compiler.New(pool)
	return c.Compile(program)
}

func vmConfigFromFile(cfgPath string) (vm.Config, error) {
	if cfgPath == "" {
		return vm.DefaultConfig(), nil
	}
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return vm.Config{}, fmt.Errorf("loading config %s: %w", cfgPath, err)
	}
	return vm.Config{
		InitialStackSize:  loaded.InitialStackSize,
		MaxFrameDepth:     loaded.MaxFrameDepth,
		PrototypeHopLimit: loaded.PrototypeHopLimit,
		GC: gc.Config{
			InitialThreshold: int(loaded.InitialGCThreshold),
			MinThreshold:     int(loaded.MinGCThreshold),
			GrowthFactor:     loaded.GCGrowthFactor,
		},
	}, nil
}
