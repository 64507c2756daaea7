package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xupit3r/planedma/internal/config"
	"github.com/xupit3r/planedma/internal/logging"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	noColor bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "planedma",
	Short: "Stage planar frames through a DMA engine and verify the result",
	Long: `planedma builds luma and chroma views over a P010 frame, binds them to a
DMA engine, runs a pipeline over the transferred planes and checks every
output sample against the expected transform.

Engine allocation, plane preparation and teardown are always paired, so a
failing pipeline or a validation mismatch never leaks device state.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.planedma/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("device", "", "DMA device to use (default from config)")
	rootCmd.PersistentFlags().String("format", "", "DMA pixel format (default from config)")
	rootCmd.PersistentFlags().String("dump-dir", "", "directory for TIFF dumps of input and output frames")
}

// loadConfig reads the config file and environment, applies flag overrides
// and sets up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("device"); v != "" {
		c.DMA.Device = v
	}
	if v, _ := flags.GetString("format"); v != "" {
		c.Frame.Format = v
	}
	if v, _ := flags.GetString("dump-dir"); v != "" {
		c.Output.DumpDir = v
	}
	if noColor {
		c.Output.Color = false
	}
	switch {
	case verbose:
		c.Logging.Level = "debug"
	case quiet:
		c.Logging.Level = "error"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	err = logging.Init(logging.Options{
		Level:   c.Logging.Level,
		File:    c.Logging.File,
		Console: c.Logging.Console,
		JSON:    c.Logging.JSON,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	cfg = c
	return nil
}
