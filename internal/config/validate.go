package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePreview(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePreview() error {
	if c.Preview.MemoryBudgetMiB < 0 {
		return errors.New("preview.memory_budget_mib must be non-negative")
	}
	switch c.Preview.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("preview.format: unsupported value %q", c.Preview.Format)
	}
	if !ValidBin(c.Preview.DefaultBin) {
		return fmt.Errorf("preview.default_bin must be one of %v", SupportedBins)
	}
	if c.Preview.DefaultQuality < MinQuality || c.Preview.DefaultQuality > MaxQuality {
		return fmt.Errorf("preview.default_quality must be between %d and %d", MinQuality, MaxQuality)
	}
	if c.Preview.MinFreeRatio < 0 || c.Preview.MinFreeRatio >= 1 {
		return errors.New("preview.min_free_ratio must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateScan() error {
	if err := c.Scan.ScanConfig.validateCuts(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
