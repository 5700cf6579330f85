// Package config provides configuration management for probecore.
// It reads settings from probecore.ini using multiple search paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds all configuration settings for probecore.
type Config struct {
	// Transport settings.
	Port     string
	DataRate int
	Timeout  int

	// ProgressInterval is read from progress_interval_ms (default 500ms).
	// No driver consults it: driver.NewTimeoutTicker reports progress of
	// long operations on a fixed 500ms interval.
	ProgressInterval time.Duration

	// Per-driver timeout overrides. Zero means "use the driver's
	// built-in default".
	EraseTimeout       time.Duration
	ProgramTimeout     time.Duration
	MassEraseTimeout   time.Duration
	AT32OptionErase    time.Duration
	StubTimeout        time.Duration

	// EnableUndocumentedMagic gates the CH32F1 MAGIC(addr) sequence
	// (spec.md §9); off unless a config file explicitly turns it on.
	EnableUndocumentedMagic bool
}

// Load reads configuration from probecore.ini in the following search
// order:
//  1. Current directory (./probecore.ini)
//  2. $PROBECORE directory ($PROBECORE/probecore.ini)
//  3. Home directory (~/probecore.ini)
//
// A missing file is not an error: Load returns the defaults below (port
// COM3 at 6000000 baud, no per-driver timeout overrides).
func Load() (*Config, error) {
	var searchPaths []string
	searchPaths = append(searchPaths, filepath.Join(".", "probecore.ini"))
	if dir := os.Getenv("PROBECORE"); dir != "" {
		searchPaths = append(searchPaths, filepath.Join(dir, "probecore.ini"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, "probecore.ini"))
	}

	var iniFile *ini.File
	for _, path := range searchPaths {
		if _, statErr := os.Stat(path); statErr == nil {
			f, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
			iniFile = f
			break
		}
	}
	if iniFile == nil {
		iniFile = ini.Empty()
	}

	section := iniFile.Section("DEFAULT")
	cfg := &Config{
		Port:                    section.Key("port").MustString("COM3"),
		DataRate:                section.Key("data_rate").MustInt(6000000),
		Timeout:                 section.Key("timeout").MustInt(10),
		ProgressInterval:        time.Duration(section.Key("progress_interval_ms").MustInt(500)) * time.Millisecond,
		EraseTimeout:            time.Duration(section.Key("erase_timeout_ms").MustInt(0)) * time.Millisecond,
		ProgramTimeout:          time.Duration(section.Key("program_timeout_ms").MustInt(0)) * time.Millisecond,
		MassEraseTimeout:        time.Duration(section.Key("mass_erase_timeout_ms").MustInt(0)) * time.Millisecond,
		AT32OptionErase:         time.Duration(section.Key("at32_option_erase_timeout_ms").MustInt(20000)) * time.Millisecond,
		StubTimeout:             time.Duration(section.Key("stub_timeout_ms").MustInt(0)) * time.Millisecond,
		EnableUndocumentedMagic: section.Key("enable_undocumented_magic").MustBool(false),
	}
	return cfg, nil
}

// ConfigPath returns the path to the config file that would be loaded, or
// an error if none of the search locations has one.
func ConfigPath() (string, error) {
	paths := []string{filepath.Join(".", "probecore.ini")}
	if dir := os.Getenv("PROBECORE"); dir != "" {
		paths = append(paths, filepath.Join(dir, "probecore.ini"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "probecore.ini"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no probecore.ini file found")
}
