package pkg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/commonarch/system/internal/paths"
)

// rawSystemConfig mirrors /system.yaml's on-disk shape loosely: fields are
// decoded into yaml.Node first so that a wrong-typed recognised key (e.g.
// packages given as a scalar instead of a list) can be treated as absent
// rather than failing the whole document, matching the distilled behaviour
// of utils/helpers.get_system_config plus system.py's isinstance guards.
type rawSystemConfig struct {
	Image              string    `yaml:"image"`
	AutoUpdate         yaml.Node `yaml:"auto-update"`
	AutoUpdateInterval yaml.Node `yaml:"auto-update-interval"`
	Packages           yaml.Node `yaml:"packages"`
	Services           yaml.Node `yaml:"services"`
	UserServices       yaml.Node `yaml:"user-services"`
}

// SystemConfig is the parsed, validated form of /system.yaml (§3).
type SystemConfig struct {
	Image string

	// AutoUpdateSet is true when auto-update was present and boolean;
	// AutoUpdate is only meaningful when AutoUpdateSet is true.
	AutoUpdateSet bool
	AutoUpdate    bool

	// AutoUpdateInterval defaults to 3600 seconds when absent or not an int.
	AutoUpdateInterval int

	Packages     []string
	Services     []string
	UserServices []string
}

const defaultAutoUpdateInterval = 3600

// LoadSystemConfig reads and validates /system.yaml. A read or parse
// failure is a SystemFileError, fatal for any command that requires
// config (§7).
func LoadSystemConfig() (*SystemConfig, error) {
	return loadSystemConfigFrom(paths.SystemConfigFile)
}

func loadSystemConfigFrom(path string) (*SystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SystemFileError{Path: path, Cause: err}
	}

	var raw rawSystemConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &SystemFileError{Path: path, Cause: err}
	}

	cfg := &SystemConfig{
		Image:              raw.Image,
		AutoUpdateInterval: defaultAutoUpdateInterval,
	}

	if b, ok := decodeBool(raw.AutoUpdate); ok {
		cfg.AutoUpdateSet = true
		cfg.AutoUpdate = b
	}
	if n, ok := decodeInt(raw.AutoUpdateInterval); ok {
		cfg.AutoUpdateInterval = n
	}
	cfg.Packages, _ = decodeStringList(raw.Packages)
	cfg.Services, _ = decodeStringList(raw.Services)
	cfg.UserServices, _ = decodeStringList(raw.UserServices)

	return cfg, nil
}

func decodeBool(n yaml.Node) (bool, bool) {
	var v bool
	if n.Decode(&v) != nil {
		return false, false
	}
	return v, true
}

func decodeInt(n yaml.Node) (int, bool) {
	var v int
	if n.Decode(&v) != nil {
		return 0, false
	}
	return v, true
}

func decodeStringList(n yaml.Node) ([]string, bool) {
	var v []string
	if n.Decode(&v) != nil {
		return nil, false
	}
	return v, true
}

// SystemFileError is returned when /system.yaml cannot be read or parsed.
type SystemFileError struct {
	Path  string
	Cause error
}

func (e *SystemFileError) Error() string {
	return fmt.Sprintf("could not read system configuration at %s: %v", e.Path, e.Cause)
}

func (e *SystemFileError) Unwrap() error { return e.Cause }
