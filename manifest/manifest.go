// Package manifest handles tern.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/tern/compiler"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "tern.toml"

// Manifest represents a tern.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	Compiler CompilerConfig `toml:"compiler"`

	// Dir is the directory containing the tern.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// CompilerConfig carries compiler settings. Zero values mean the compiler's
// defaults.
type CompilerConfig struct {
	MaxStack       int  `toml:"max-stack"`
	SmallStringMax int  `toml:"small-string-max"`
	StrictTypes    bool `toml:"strict-types"`
}

// Load parses a tern.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Compiler.MaxStack < 0 || m.Compiler.SmallStringMax < 0 {
		return nil, fmt.Errorf("%s: compiler limits must not be negative", path)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a tern.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry script, or "" if none is
// configured.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// CompilerOptions converts the manifest into compile options whose imports
// resolve against the source directories.
func (m *Manifest) CompilerOptions() compiler.Options {
	return compiler.Options{
		MaxStack:       m.Compiler.MaxStack,
		SmallStringMax: m.Compiler.SmallStringMax,
		StrictTypes:    m.Compiler.StrictTypes,
		Loader:         NewSourceLoader(m.SourceDirPaths()...),
	}
}
