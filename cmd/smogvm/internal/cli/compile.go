package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/bytecode"
	"github.com/kristofer/smogvm/pkg/compiler"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/parser"
)

func newCompileCommand(log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <in> [out]",
		Short: "compile a .smog source file to a .sgc bytecode archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + ".sgc"
			}

			src, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading %s: %w", in, err)
			}
			program, errs := parser.ParseProgram(string(src))
			if len(errs) > 0 {
				return fmt.Errorf("parse error: %s", errs[0].Error())
			}
			chunk, err := compiler.New(intern.New()).Compile(program)
			if err != nil {
				return fmt.Errorf("compile error: %w", err)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			if err := bytecode.Encode(chunk, f); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			log.Info("compiled", zap.String("in", in), zap.String("out", out))
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
}
