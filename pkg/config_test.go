package pkg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadSystemConfig_Minimal(t *testing.T) {
	path := writeYAML(t, "image: docker://example.org/os:stable\n")

	cfg, err := loadSystemConfigFrom(path)
	if err != nil {
		t.Fatalf("loadSystemConfigFrom failed: %v", err)
	}
	if cfg.Image != "docker://example.org/os:stable" {
		t.Errorf("Image = %q", cfg.Image)
	}
	if cfg.AutoUpdateSet {
		t.Error("AutoUpdateSet should be false when absent")
	}
	if cfg.AutoUpdateInterval != defaultAutoUpdateInterval {
		t.Errorf("AutoUpdateInterval = %d, want default %d", cfg.AutoUpdateInterval, defaultAutoUpdateInterval)
	}
	if len(cfg.Packages) != 0 {
		t.Errorf("Packages = %v, want empty", cfg.Packages)
	}
}

func TestLoadSystemConfig_FullDocument(t *testing.T) {
	path := writeYAML(t, `
image: docker://example.org/os:stable
auto-update: true
auto-update-interval: 120
packages:
  - vim
  - htop
services:
  - sshd
user-services:
  - podman.socket
`)

	cfg, err := loadSystemConfigFrom(path)
	if err != nil {
		t.Fatalf("loadSystemConfigFrom failed: %v", err)
	}
	if !cfg.AutoUpdateSet || !cfg.AutoUpdate {
		t.Error("AutoUpdate should be true")
	}
	if cfg.AutoUpdateInterval != 120 {
		t.Errorf("AutoUpdateInterval = %d, want 120", cfg.AutoUpdateInterval)
	}
	if len(cfg.Packages) != 2 || cfg.Packages[0] != "vim" {
		t.Errorf("Packages = %v", cfg.Packages)
	}
	if len(cfg.Services) != 1 || cfg.Services[0] != "sshd" {
		t.Errorf("Services = %v", cfg.Services)
	}
	if len(cfg.UserServices) != 1 || cfg.UserServices[0] != "podman.socket" {
		t.Errorf("UserServices = %v", cfg.UserServices)
	}
}

func TestLoadSystemConfig_WrongTypedFieldsTreatedAsAbsent(t *testing.T) {
	path := writeYAML(t, `
image: docker://example.org/os:stable
packages: not-a-list
auto-update: "yes"
`)

	cfg, err := loadSystemConfigFrom(path)
	if err != nil {
		t.Fatalf("loadSystemConfigFrom failed: %v", err)
	}
	if len(cfg.Packages) != 0 {
		t.Errorf("Packages = %v, want empty for non-list value", cfg.Packages)
	}
	if cfg.AutoUpdateSet {
		t.Error("AutoUpdateSet should be false for a non-bool value")
	}
}

func TestLoadSystemConfig_UnreadableIsFatal(t *testing.T) {
	_, err := loadSystemConfigFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	var sfe *SystemFileError
	if _, ok := err.(*SystemFileError); !ok {
		t.Errorf("error = %T (%v), want *SystemFileError", err, err)
		_ = sfe
	}
}

func TestLoadSystemConfig_MalformedYAMLIsFatal(t *testing.T) {
	path := writeYAML(t, "image: [unterminated\n")

	_, err := loadSystemConfigFrom(path)
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
	if _, ok := err.(*SystemFileError); !ok {
		t.Errorf("error = %T, want *SystemFileError", err)
	}
}
