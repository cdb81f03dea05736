package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/vm"
)

func newRunCommand(log *zap.Logger) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "compile (if .smog) or load (if .sgc) and run a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := vmConfigFromFile(cfgPath)
			if err != nil {
				return err
			}
			machine := vm.New(cfg, log)
			machine.SetPrintHook(func(s string) { fmt.Println(s) })
			chunk, err := loadChunk(args[0], machine.Intern())
			if err != nil {
				return err
			}
			result, err := machine.Run(chunk)
			if err != nil {
				return fmt.Errorf("runtime error: %w", err)
			}
			fmt.Println(result.GoString())
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a smogvm.toml config file")
	return cmd
}
