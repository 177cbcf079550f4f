// Package manifest handles runtime.toml configuration: the tunables a
// host process sets before constructing a Context, rather than anything
// describing a project's own source layout or dependencies (§10).
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a runtime.toml configuration file.
type Manifest struct {
	GC       GC       `toml:"gc"`
	Stack    Stack    `toml:"stack"`
	Builtins Builtins `toml:"builtins"`

	// Dir is the directory containing the runtime.toml file (set at load time).
	Dir string `toml:"-"`
}

// GC configures the collector's allocation threshold, per §4.1's
// threshold-doubling collect() trigger.
type GC struct {
	InitialThreshold int  `toml:"initial-threshold"`
	LogCollections   bool `toml:"log-collections"`
}

// Stack holds the [stack] section of runtime.toml. Nothing in package vm
// reads these fields: frame slices still grow on demand and call depth is
// not capped, whatever values are set here.
type Stack struct {
	InitialOperandCapacity int `toml:"initial-operand-capacity"`
	MaxCallDepth           int `toml:"max-call-depth"`
}

// Builtins toggles optional groups of host-provided FFI methods, per
// §1/§12: primitive method libraries are a host concern, not core VM
// code, and a host may want to omit some of them entirely (e.g. running
// with only arithmetic, no class-definition surface).
type Builtins struct {
	Arithmetic bool `toml:"arithmetic"`
	Classes    bool `toml:"classes"`
	Print      bool `toml:"print"`
}

// Default returns the configuration InstallBuiltins assumes when no
// runtime.toml is present: every builtin group enabled, a modest GC
// threshold, and no artificial call-depth cap.
func Default() *Manifest {
	return &Manifest{
		GC:    GC{InitialThreshold: 1 << 16, LogCollections: false},
		Stack: Stack{InitialOperandCapacity: 16, MaxCallDepth: 0},
		Builtins: Builtins{
			Arithmetic: true,
			Classes:    true,
			Print:      true,
		},
	}
}

// Load parses a runtime.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "runtime.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a runtime.toml file, then
// loads and returns the manifest. Returns Default() with no error if no
// manifest is found anywhere above startDir — a missing runtime.toml is
// not a failure, just an all-defaults run.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "runtime.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
