package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/xupit3r/planedma/internal/dma"
)

// Config represents the application configuration
type Config struct {
	Frame      FrameConfig      `mapstructure:"frame"`
	DMA        DMAConfig        `mapstructure:"dma"`
	Validation ValidationConfig `mapstructure:"validation"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type FrameConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Format string `mapstructure:"format"`
	Factor int    `mapstructure:"factor"`
}

type DMAConfig struct {
	Device     string `mapstructure:"device"`
	MaxEngines int    `mapstructure:"max_engines"`
	Workers    int    `mapstructure:"workers"`
}

type ValidationConfig struct {
	MaxMismatches int  `mapstructure:"max_mismatches"`
	StopAfter     int  `mapstructure:"stop_after"`
	Tolerance     int  `mapstructure:"tolerance"`
	PerPlane      bool `mapstructure:"per_plane"`
}

type OutputConfig struct {
	DumpDir    string `mapstructure:"dump_dir"`
	DumpOnFail bool   `mapstructure:"dump_on_fail"`
	Color      bool   `mapstructure:"color"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
	JSON    bool   `mapstructure:"json"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	baseDir := filepath.Join(home, ".planedma")

	return &Config{
		Frame: FrameConfig{
			Width:  64,
			Height: 64,
			Format: "p010",
			Factor: 2,
		},
		DMA: DMAConfig{
			Device:     "sim",
			MaxEngines: dma.DefaultMaxEngines,
			Workers:    2,
		},
		Validation: ValidationConfig{
			MaxMismatches: 20,
			StopAfter:     0,
			Tolerance:     0,
			PerPlane:      true,
		},
		Output: OutputConfig{
			DumpDir:    filepath.Join(baseDir, "dumps"),
			DumpOnFail: true,
			Color:      true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".planedma"))
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// Environment variables
	v.SetEnvPrefix("PLANEDMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Frame.Width <= 0 || c.Frame.Width%2 != 0 {
		return errors.New("frame.width must be positive and even")
	}
	if c.Frame.Height < 0 || c.Frame.Height%2 != 0 {
		return errors.New("frame.height must be non-negative and even")
	}
	f, err := dma.ParseFormat(c.Frame.Format)
	if err != nil {
		return fmt.Errorf("frame.format: %w", err)
	}
	if f.Plane() != dma.AnyPlane {
		return fmt.Errorf("frame.format: %s is a single-plane format", f)
	}
	if c.Frame.Factor < 0 || c.Frame.Factor > 0xFFFF {
		return errors.New("frame.factor must fit in 16 bits")
	}

	if !lo.Contains(dma.Devices(), c.DMA.Device) {
		return fmt.Errorf("dma.device must be one of: %v", dma.Devices())
	}
	if c.DMA.MaxEngines < 1 {
		return errors.New("dma.max_engines must be at least 1")
	}
	if c.DMA.Workers < 1 {
		return errors.New("dma.workers must be at least 1")
	}

	if c.Validation.MaxMismatches < 1 {
		return errors.New("validation.max_mismatches must be at least 1")
	}
	if c.Validation.StopAfter < 0 {
		return errors.New("validation.stop_after must be non-negative")
	}
	if c.Validation.Tolerance < 0 || c.Validation.Tolerance > 0xFFFF {
		return errors.New("validation.tolerance must fit in 16 bits")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !lo.Contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Output.DumpDir = expandPath(c.Output.DumpDir)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("frame.width", cfg.Frame.Width)
	v.SetDefault("frame.height", cfg.Frame.Height)
	v.SetDefault("frame.format", cfg.Frame.Format)
	v.SetDefault("frame.factor", cfg.Frame.Factor)

	v.SetDefault("dma.device", cfg.DMA.Device)
	v.SetDefault("dma.max_engines", cfg.DMA.MaxEngines)
	v.SetDefault("dma.workers", cfg.DMA.Workers)

	v.SetDefault("validation.max_mismatches", cfg.Validation.MaxMismatches)
	v.SetDefault("validation.stop_after", cfg.Validation.StopAfter)
	v.SetDefault("validation.tolerance", cfg.Validation.Tolerance)
	v.SetDefault("validation.per_plane", cfg.Validation.PerPlane)

	v.SetDefault("output.dump_dir", cfg.Output.DumpDir)
	v.SetDefault("output.dump_on_fail", cfg.Output.DumpOnFail)
	v.SetDefault("output.color", cfg.Output.Color)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.json", cfg.Logging.JSON)
}
