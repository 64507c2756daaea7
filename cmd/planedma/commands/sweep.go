package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/planedma/internal/logging"
	"github.com/xupit3r/planedma/internal/runner"
)

var defaultSweepSizes = []string{"64x64", "320x240", "640x480", "1280x720", "1920x1080"}

var sweepCmd = &cobra.Command{
	Use:   "sweep [WIDTHxHEIGHT...]",
	Short: "Run independent sessions over several frame sizes",
	Long: `Run one DMA session per frame size, at most --workers at a time. Each
size gets its own device instance and is validated on its own; one failing
size does not stop the others.`,
	Example: `  planedma sweep
  planedma sweep 64x64 128x96 --workers 4`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Int("workers", 0, "concurrent sessions (default from config)")
	sweepCmd.Flags().Int("repeat", 1, "run every size this many times")
}

func runSweep(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = defaultSweepSizes
	}
	sizes, err := runner.ParseSizes(args)
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("repeat"); n > 1 {
		sizes = repeatSizes(sizes, n)
	}
	workers := cfg.DMA.Workers
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		workers = v
	}

	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	opts.Log = logging.WithFields(logrus.Fields{"cmd": "sweep"})

	results, err := runner.Sweep(cmd.Context(), opts, sizes, workers, deviceFactory(cfg))
	printSweep(cmd.OutOrStdout(), newStyles(cfg.Output.Color), results)
	return err
}

// repeatSizes returns every size n times in round-robin order.
func repeatSizes(sizes []runner.Size, n int) []runner.Size {
	out := make([]runner.Size, 0, len(sizes)*n)
	for range n {
		out = append(out, sizes...)
	}
	return out
}
