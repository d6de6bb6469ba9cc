// Command scenegazed is the thin composition root that wires config,
// logging, and an adb client together. Scene loading and CLI flag
// parsing are an explicit out-of-scope seam (spec §1): this binary only
// proves the core packages assemble into a runnable process; a real
// driver would load a scene file and call pkg/scene.Executor.Execute.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scenegaze/scenegaze/internal/config"
	"github.com/scenegaze/scenegaze/internal/logging"
	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenegazed: %v\n", err)
		return 1
	}

	logCfg := logging.DefaultConfig()
	if dataDir := os.Getenv("SCENEGAZE_DATA_DIR"); dataDir != "" {
		logCfg = logging.PersistentConfig(dataDir)
	}
	logger, closeLog, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenegazed: init logging: %v\n", err)
		return 1
	}
	defer closeLog()

	logger.Info().
		Str("adbPath", cfg.AdbPath).
		Str("frameworkCLIPath", cfg.FrameworkCLIPath).
		Str("outputDir", cfg.OutputDir).
		Msg("scenegazed starting")

	adbPath := cfg.AdbPath
	if resolved, err := config.ResolveBinary(cfg.AdbPath); err == nil {
		adbPath = resolved
	} else {
		logger.Warn().Err(err).Str("adbPath", cfg.AdbPath).Msg("adb not found on PATH, using configured path as-is")
	}

	client := adb.NewClient(adbPath, adb.WithTimeout(cfg.DefaultADBTimeout))
	_ = session.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	devices, err := client.ListDevices(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("list devices")
		return 1
	}
	logger.Info().Int("count", len(devices)).Msg("devices visible to adb")

	logger.Info().Msg("scenegazed ready; scene loading is wired by the caller, not this binary")
	return 0
}
