// Package config resolves the environment-driven settings the executable
// seam needs: the adb binary location, the UI-framework CLI location,
// working directory, output directory, and default timeouts. Scene file
// parsing and CLI flag parsing are explicitly out of the core's scope
// (spec §1); this package only resolves the handful of settings the core
// packages need to be constructed.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// Config is the resolved environment for one scenegaze run.
type Config struct {
	AdbPath           string
	FrameworkCLIPath  string
	WorkingDir        string
	OutputDir         string
	Env               map[string]string
	DefaultADBTimeout time.Duration
}

// Load resolves Config from SCENEGAZE_* environment variables, falling
// back to the platform's bare binary names (adb/adb.exe, flutter/
// flutter.exe); it does not search PATH itself, ResolveBinary does that.
// Env starts empty and DefaultADBTimeout is fixed at 30s.
func Load() (Config, error) {
	cfg := Config{
		Env:               map[string]string{},
		DefaultADBTimeout: 30 * time.Second,
	}

	cfg.AdbPath = firstNonEmpty(os.Getenv("SCENEGAZE_ADB_PATH"), defaultBinaryName("adb"))
	cfg.FrameworkCLIPath = firstNonEmpty(os.Getenv("SCENEGAZE_FRAMEWORK_CLI"), defaultBinaryName("flutter"))

	if wd := os.Getenv("SCENEGAZE_WORKDIR"); wd != "" {
		cfg.WorkingDir = wd
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve working directory: %w", err)
		}
		cfg.WorkingDir = wd
	}

	cfg.OutputDir = firstNonEmpty(os.Getenv("SCENEGAZE_OUTPUT_DIR"), "observations")

	return cfg, nil
}

// ResolveBinary looks up name on PATH, returning an error that names the
// binary the way a missing adb/flutter executable should be reported.
func ResolveBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("config: %s not found on PATH: %w", name, err)
	}
	return path, nil
}

func defaultBinaryName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
