package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCENEGAZE_ADB_PATH", "")
	t.Setenv("SCENEGAZE_FRAMEWORK_CLI", "")
	t.Setenv("SCENEGAZE_WORKDIR", "")
	t.Setenv("SCENEGAZE_OUTPUT_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdbPath == "" {
		t.Error("expected non-empty default adb path")
	}
	if cfg.OutputDir != "observations" {
		t.Errorf("got output dir %q, want observations", cfg.OutputDir)
	}
	if cfg.DefaultADBTimeout <= 0 {
		t.Error("expected positive default timeout")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCENEGAZE_ADB_PATH", "/opt/android/adb")
	t.Setenv("SCENEGAZE_OUTPUT_DIR", "/tmp/out")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdbPath != "/opt/android/adb" {
		t.Errorf("got adb path %q", cfg.AdbPath)
	}
	if cfg.OutputDir != "/tmp/out" {
		t.Errorf("got output dir %q", cfg.OutputDir)
	}
}
