package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xupit3r/planedma/internal/dma"
	"github.com/xupit3r/planedma/internal/system"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show DMA device and host memory information",
	Long: `List the registered DMA devices, open the configured one and show its
counters together with the host memory available for frame buffers.`,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	s := newStyles(cfg.Output.Color)

	fmt.Fprintln(out, s.title.Render("Devices"))
	for _, name := range dma.Devices() {
		mark := " "
		if name == cfg.DMA.Device {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, name)
	}

	dev, err := deviceFactory(cfg)()
	if err != nil {
		fmt.Fprintln(out, s.fail.Render("open failed:"), err)
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, s.title.Render("Selected"))
	s.field(out, "name", dev.Name())
	s.field(out, "balanced", dev.Stats().Balanced())

	fmt.Fprintln(out)
	fmt.Fprintln(out, s.title.Render("Host"))
	s.field(out, "platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
	s.field(out, "cpus", runtime.NumCPU())
	info, err := system.ReadMemInfo()
	switch {
	case errors.Is(err, system.ErrUnsupported):
		s.field(out, "memory", "unknown on this platform")
	case err != nil:
		return fmt.Errorf("reading memory info: %w", err)
	default:
		s.field(out, "total", system.FormatBytes(info.TotalBytes))
		s.field(out, "available", system.FormatBytes(info.AvailableBytes))
		s.field(out, "headroom", system.FormatBytes(system.Headroom))
	}
	return nil
}
