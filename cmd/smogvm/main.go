// Command smogvm is the CLI front end: it drives the Source -> AST ->
// Chunk -> VM pipeline, wiring the lexer/parser/compiler up to the
// execution core, through run/compile/disassemble/repl/gc-stats
// subcommands.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kristofer/smogvm/cmd/smogvm/internal/cli"
)

func main() {
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if err := cli.NewRootCommand(log).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
