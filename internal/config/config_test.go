package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Dataplane.DisposalMode != "first-thread" {
		t.Errorf("Dataplane.DisposalMode = %q, want first-thread", cfg.Dataplane.DisposalMode)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "logging:\n  level: DEBUG\n  format: json\n  output: stdout\ndataplane:\n  interface: eth0\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG", cfg.Logging.Level)
	}
	if cfg.Dataplane.Interface != "eth0" {
		t.Errorf("Dataplane.Interface = %q, want eth0", cfg.Dataplane.Interface)
	}
	// Fields absent from the file still get their defaults.
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "logging:\n  level: INFO\n  format: text\n  output: stderr\ndataplane:\n  interface: eth0\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NFGRAPH_LOGGING_LEVEL", "WARN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Logging.Level = %q, want WARN (env should win over file)", cfg.Logging.Level)
	}
}

func TestLoad_InvalidLoggingLevelRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "logging:\n  level: LOUD\n  format: text\n  output: stderr\ndataplane:\n  interface: eth0\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for an invalid logging level")
	}
}

// chaind reads the same file shape and never sets an interface; a file
// without one must still load.
func TestLoad_NoInterfaceStillLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "logging:\n  level: INFO\n  format: text\n  output: stderr\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataplane.Interface != "" {
		t.Errorf("Dataplane.Interface = %q, want empty", cfg.Dataplane.Interface)
	}
	if cfg.Dataplane.PollTimeoutMs != 5 {
		t.Errorf("Dataplane.PollTimeoutMs = %d, want 5", cfg.Dataplane.PollTimeoutMs)
	}
}

func TestLoad_CompilerTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "logging:\n  level: INFO\n  format: text\n  output: stderr\ncompiler:\n  targets:\n    - triple: aarch64-unknown-linux-gnu\n      vmlinux_path: /boot/vmlinux\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Compiler.Targets) != 1 {
		t.Fatalf("len(Compiler.Targets) = %d, want 1", len(cfg.Compiler.Targets))
	}
	tgt := cfg.Compiler.Targets[0]
	if tgt.Triple != "aarch64-unknown-linux-gnu" || tgt.VmlinuxPath != "/boot/vmlinux" {
		t.Fatalf("Targets[0] = %+v", tgt)
	}
}
