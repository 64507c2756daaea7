package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/planedma/internal/config"
	"github.com/xupit3r/planedma/internal/dma"
	"github.com/xupit3r/planedma/internal/logging"
	"github.com/xupit3r/planedma/internal/pipeline"
	"github.com/xupit3r/planedma/internal/runner"
	"github.com/xupit3r/planedma/internal/validate"
)

var runCmd = &cobra.Command{
	Use:   "run [WIDTH HEIGHT]",
	Short: "Run one frame through a DMA session and validate it",
	Long: `Allocate a P010 input and output frame of WIDTH x HEIGHT, stage the luma
and chroma planes through one DMA session, scale every sample and check the
output.

Without arguments the frame size comes from the config file.`,
	Example: `  planedma run 1920 1080
  planedma run 64 64 --per-plane=false --dump-dir /tmp/frames`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected WIDTH HEIGHT, got %d arguments", len(args))
		}
		return nil
	},
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("per-plane", true, "validate luma and chroma through their own views")
	runCmd.Flags().Int("factor", 0, "pipeline scale factor (default from config)")
	runCmd.Flags().Int("tolerance", -1, "allowed absolute difference per sample (default from config)")
	runCmd.Flags().Int("stop-after", -1, "stop validating after this many mismatches (default from config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		w, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("width: %w", err)
		}
		h, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("height: %w", err)
		}
		cfg.Frame.Width, cfg.Frame.Height = w, h
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	dev, err := deviceFactory(cfg)()
	if err != nil {
		return err
	}
	opts.Device = dev
	opts.Log = logging.WithFields(logrus.Fields{"cmd": "run"})

	res, err := runner.Run(cmd.Context(), opts)
	printResult(cmd.OutOrStdout(), newStyles(cfg.Output.Color), res, err)
	if errors.Is(err, runner.ErrValidation) && res != nil {
		return fmt.Errorf("%d mismatching samples", res.Report.Count)
	}
	return err
}

func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("per-plane") {
		c.Validation.PerPlane, _ = flags.GetBool("per-plane")
	}
	if v, _ := flags.GetInt("factor"); v > 0 {
		c.Frame.Factor = v
	}
	if v, _ := flags.GetInt("tolerance"); v >= 0 {
		c.Validation.Tolerance = v
	}
	if v, _ := flags.GetInt("stop-after"); v >= 0 {
		c.Validation.StopAfter = v
	}
	return c.Validate()
}

// buildOptions turns the configuration into runner options. The device is
// left for the caller so sweeps can open one per size.
func buildOptions(c *config.Config) (runner.Options, error) {
	f, err := dma.ParseFormat(c.Frame.Format)
	if err != nil {
		return runner.Options{}, err
	}
	factor := uint16(c.Frame.Factor)
	return runner.Options{
		Width:      c.Frame.Width,
		Height:     c.Frame.Height,
		Format:     f,
		DeviceName: c.DMA.Device,
		Pipeline:   pipeline.Scale{Factor: factor},
		Validator: validate.Validator{
			Transform: func(s uint16) uint16 { return s * factor },
			Tolerance: uint16(c.Validation.Tolerance),
		},
		Collector: validate.Collector{
			Limit:     c.Validation.MaxMismatches,
			StopAfter: c.Validation.StopAfter,
		},
		PerPlane:   c.Validation.PerPlane,
		DumpDir:    c.Output.DumpDir,
		DumpOnFail: c.Output.DumpOnFail,
	}, nil
}

// deviceFactory opens the configured device. The simulator honours
// dma.max_engines.
func deviceFactory(c *config.Config) dma.Factory {
	if c.DMA.Device == "sim" {
		n := c.DMA.MaxEngines
		return func() (dma.Device, error) {
			return dma.NewSimDevice(dma.WithMaxEngines(n)), nil
		}
	}
	name := c.DMA.Device
	return func() (dma.Device, error) { return dma.Open(name) }
}
