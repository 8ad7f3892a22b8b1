package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds retract configuration.
type Config struct {
	Version     string `yaml:"version"`
	ScriptName  string `yaml:"script,omitempty"`
	HistoryName string `yaml:"history,omitempty"`
	BlankPolicy string `yaml:"blank_policy,omitempty"`
	MaxDelete   int    `yaml:"max_delete,omitempty"`
	Verbose     bool   `yaml:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version:     "1",
		ScriptName:  "build.sh",
		HistoryName: "history.log",
		BlankPolicy: "preserve",
	}
}

// Store represents a loaded retract work directory: the generated build
// script, the command-history log, their undo ledgers, the shared carry
// file and the deleted-lines records all live under one directory.
type Store struct {
	Dir    string
	Config Config
}

// WorkDir returns the work directory path, respecting the RETRACT_DIR
// env var.
func WorkDir() string {
	if d := os.Getenv("RETRACT_DIR"); d != "" {
		return d
	}
	return ".retract"
}

// Init creates the work directory structure.
func Init(dir string, force bool) error {
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil && !force {
		return fmt.Errorf("work directory already exists at %s (use --force to reinitialize)", dir)
	}

	for _, d := range []string{dir, filepath.Join(dir, "deleted")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads and validates an existing work directory.
// Missing config fields are filled from defaults.
func Load(dir string) (*Store, error) {
	cfgPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	if cfg.ScriptName == "" {
		cfg.ScriptName = DefaultConfig().ScriptName
	}
	if cfg.HistoryName == "" {
		cfg.HistoryName = DefaultConfig().HistoryName
	}
	return &Store{Dir: dir, Config: cfg}, nil
}

// Save writes the config back to disk.
func (s *Store) Save() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path("config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path joins parts under the work directory.
func (s *Store) Path(parts ...string) string {
	return filepath.Join(append([]string{s.Dir}, parts...)...)
}

// Target selects which of the two maintained files an operation acts on.
type Target int

const (
	Script Target = iota
	History
)

func (t Target) String() string {
	if t == History {
		return "history"
	}
	return "script"
}

// ParseTargets expands a --target flag value into concrete targets.
// "both" (and "") selects script then history, in that order.
func ParseTargets(s string) ([]Target, error) {
	switch s {
	case "", "both":
		return []Target{Script, History}, nil
	case "script":
		return []Target{Script}, nil
	case "history":
		return []Target{History}, nil
	}
	return nil, fmt.Errorf("unknown target %q (want both, script or history)", s)
}

// TargetPath returns the text file a target names.
func (s *Store) TargetPath(t Target) string {
	if t == History {
		return s.Path(s.Config.HistoryName)
	}
	return s.Path(s.Config.ScriptName)
}

// LedgerPath returns the undo ledger file for a target.
func (s *Store) LedgerPath(t Target) string {
	return s.TargetPath(t) + ".undo"
}

// CarryPath returns the shared provisional-delta carry file.
func (s *Store) CarryPath() string {
	return s.Path("carry")
}

// DeletedDir returns the directory holding deleted-lines records.
func (s *Store) DeletedDir() string {
	return s.Path("deleted")
}
