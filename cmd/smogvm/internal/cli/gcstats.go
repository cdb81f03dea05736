package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/vm"
)

func newGCStatsCommand(log *zap.Logger) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "gc-stats <file>",
		Short: "run a script to completion and print final GC counters",
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
			if _, err := machine.Run(chunk); err != nil {
				return fmt.Errorf("runtime error: %w", err)
			}

			stats := machine.GC().Stats()
			fmt.Printf("collections:    %s\n", humanize.Comma(int64(stats.Collections)))
			fmt.Printf("last freed:     %s objects\n", humanize.Comma(int64(stats.LastFreed)))
			fmt.Printf("last live:      %s objects\n", humanize.Comma(int64(stats.LastLive)))
			fmt.Printf("tracked now:    %s objects\n", humanize.Comma(int64(stats.Tracked)))
			fmt.Printf("next threshold: %s\n", humanize.Bytes(uint64(stats.Threshold)))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a smogvm.toml config file")
	return cmd
}
