package cli

import (
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/compiler"
	"github.com/kristofer/smogvm/pkg/parser"
	"github.com/kristofer/smogvm/pkg/vm"
)

func newReplCommand(log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "interactive read-eval-print loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(log)
		},
	}
}

// runRepl keeps one VM and one Compiler alive across lines, so
// globals defined on one line (and struct declarations, via the
// Compiler's own field-order table) are visible on the next.
func runRepl(log *zap.Logger) error {
	rl, err := readline.New("smog> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	machine := vm.New(vm.DefaultConfig(), log)
	machine.SetPrintHook(func(s string) { fmt.Println(s) })
	c := compiler.New(machine.Intern())

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		program, errs := parser.ParseProgram(line)
		if len(errs) > 0 {
			for _, e := range errs {
				fmt.Println("parse error:", e.Error())
			}
			continue
		}
		chunk, err := c.Compile(program)
		if err != nil {
			fmt.Println("compile error:", err)
			continue
		}
		result, err := machine.Run(chunk)
		if err != nil {
			fmt.Println("runtime error:", err)
			continue
		}
		fmt.Println(result.GoString())
	}
}
