package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/tern/compiler"
)

var log = commonlog.GetLogger("tern.manifest")

// Extension is appended to import names that have none.
const Extension = ".tern"

// SourceLoader resolves import names to files under a list of source
// directories. It implements compiler.Loader.
type SourceLoader struct {
	dirs []string
}

var _ compiler.Loader = (*SourceLoader)(nil)

// NewSourceLoader creates a loader searching dirs in order.
func NewSourceLoader(dirs ...string) *SourceLoader {
	return &SourceLoader{dirs: dirs}
}

// Dirs returns the search directories.
func (l *SourceLoader) Dirs() []string {
	return l.dirs
}

// Resolve returns the absolute path of the first file matching name.
func (l *SourceLoader) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty import name")
	}
	rel := filepath.FromSlash(name)
	if filepath.Ext(rel) == "" {
		rel += Extension
	}
	if filepath.IsAbs(rel) {
		if _, err := os.Stat(rel); err != nil {
			return "", fmt.Errorf("import %q: %w", name, err)
		}
		return filepath.Clean(rel), nil
	}
	if strings.HasPrefix(filepath.Clean(rel), "..") {
		return "", fmt.Errorf("import %q leaves the source directories", name)
	}
	for _, dir := range l.dirs {
		path := filepath.Join(dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("cannot resolve path %s: %w", path, err)
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("import %q not found in %s", name, strings.Join(l.dirs, ", "))
}

// Load implements compiler.Loader. The resolved absolute path is the
// import's canonical name.
func (l *SourceLoader) Load(name string) (string, string, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	log.Debugf("import %s -> %s", name, path)
	return path, string(data), nil
}
