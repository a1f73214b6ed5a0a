// Package manifest handles piccolo.toml (or piccolo.yaml) configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cheezgi/piccolo/vm"
)

// File names searched for, in order.
var FileNames = []string{"piccolo.toml", "piccolo.yaml", "piccolo.yml"}

// Defaults for the [server] section.
const (
	DefaultAddr          = "localhost:8765"
	DefaultHandleTTL     = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Manifest represents a piccolo configuration file.
type Manifest struct {
	Runtime Runtime `toml:"runtime" yaml:"runtime" json:"runtime"`
	Store   Store   `toml:"store" yaml:"store" json:"store"`
	Log     Log     `toml:"log" yaml:"log" json:"log"`
	Server  Server  `toml:"server" yaml:"server" json:"server"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-" yaml:"-" json:"-"`
	// Path is the file that was loaded, or "" for Default().
	Path string `toml:"-" yaml:"-" json:"-"`
}

// Runtime configures the interpreter.
type Runtime struct {
	InitialHeap  int      `toml:"initial-heap" yaml:"initial-heap" json:"initial-heap"`
	GrowthFactor float64  `toml:"growth-factor" yaml:"growth-factor" json:"growth-factor"`
	MaxCallDepth int      `toml:"max-call-depth" yaml:"max-call-depth" json:"max-call-depth"`
	StepLimit    int64    `toml:"step-limit" yaml:"step-limit" json:"step-limit"`
	StressGC     bool     `toml:"stress-gc" yaml:"stress-gc" json:"stress-gc"`
	Modules      []string `toml:"modules" yaml:"modules" json:"modules"`
}

// Store configures the persistent store module.
type Store struct {
	Path string `toml:"path" yaml:"path" json:"path,omitempty"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity" json:"verbosity"`
	Path      string `toml:"path" yaml:"path" json:"path,omitempty"`
}

// Server configures the remote evaluation service.
type Server struct {
	Addr          string `toml:"addr" yaml:"addr" json:"addr"`
	HandleTTL     string `toml:"handle-ttl" yaml:"handle-ttl" json:"handle-ttl"`
	SweepInterval string `toml:"sweep-interval" yaml:"sweep-interval" json:"sweep-interval"`
}

// Default returns a manifest with every default filled in.
func Default() *Manifest {
	m := &Manifest{}
	m.fillDefaults()
	return m
}

// Load reads the first configuration file found in dir.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no %s found in %s", strings.Join(FileNames, " or "), dir)
}

// LoadFile parses a configuration file, choosing TOML or YAML by extension,
// fills defaults and validates the result.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	}

	m.Path = path
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	m.fillDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) fillDefaults() {
	if m.Runtime.InitialHeap == 0 {
		m.Runtime.InitialHeap = vm.DefaultInitialThreshold
	}
	if m.Runtime.GrowthFactor == 0 {
		m.Runtime.GrowthFactor = vm.DefaultGrowthFactor
	}
	if m.Runtime.MaxCallDepth == 0 {
		m.Runtime.MaxCallDepth = vm.DefaultMaxCallDepth
	}
	if m.Runtime.Modules == nil {
		m.Runtime.Modules = append([]string(nil), vm.BuiltinModules...)
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Server.HandleTTL == "" {
		m.Server.HandleTTL = DefaultHandleTTL.String()
	}
	if m.Server.SweepInterval == "" {
		m.Server.SweepInterval = DefaultSweepInterval.String()
	}
}

// StorePath returns the absolute store path, or "" if the store is
// disabled. Relative paths are resolved against the manifest directory.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" {
		return ""
	}
	if filepath.IsAbs(m.Store.Path) || m.Dir == "" {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.Path == "" || filepath.IsAbs(m.Log.Path) || m.Dir == "" {
		return m.Log.Path
	}
	return filepath.Join(m.Dir, m.Log.Path)
}

// VMConfig converts the [runtime] and [store] sections.
func (m *Manifest) VMConfig() *vm.Config {
	return &vm.Config{
		InitialHeap:  m.Runtime.InitialHeap,
		GrowthFactor: m.Runtime.GrowthFactor,
		StressGC:     m.Runtime.StressGC,
		MaxCallDepth: m.Runtime.MaxCallDepth,
		StepLimit:    m.Runtime.StepLimit,
		Modules:      append([]string(nil), m.Runtime.Modules...),
		StorePath:    m.StorePath(),
	}
}

// HandleTTL returns how long an unused server handle lives.
func (m *Manifest) HandleTTL() time.Duration {
	return parseDuration(m.Server.HandleTTL, DefaultHandleTTL)
}

// SweepInterval returns how often expired server handles are swept.
func (m *Manifest) SweepInterval() time.Duration {
	return parseDuration(m.Server.SweepInterval, DefaultSweepInterval)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
