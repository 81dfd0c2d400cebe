package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chairctl/internal/data/embedded"
	"chairctl/pkg/chairtypes"
)

// scriptExtensions are the file types read from a scripts directory.
var scriptExtensions = []string{".yaml", ".yml", ".json", ".jsonc"}

// Set maps script identifiers to their definitions.
type Set map[chairtypes.ScriptID]*Script

// IDs lists the identifiers in the set, sorted.
func (s Set) IDs() []chairtypes.ScriptID {
	ids := make([]chairtypes.ScriptID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadDefaults parses the scripts compiled into the binary.
func LoadDefaults() (Set, error) {
	loader := embedded.NewScriptLoader()
	names, err := loader.ListAvailableScripts()
	if err != nil {
		return nil, err
	}

	set := make(Set, len(names))
	for _, name := range names {
		id, err := chairtypes.ParseScriptID(name)
		if err != nil {
			return nil, fmt.Errorf("default script %s: %w", name, err)
		}
		data, err := loader.LoadScript(name)
		if err != nil {
			return nil, err
		}
		s, err := Parse(id, loader.GetScriptPath(name), data)
		if err != nil {
			return nil, err
		}
		set[id] = s
	}
	return set, nil
}

// Load returns the default scripts overridden by the definitions in dir. Each file's base
// name must be a known script identifier. An empty dir yields the defaults.
func Load(dir string) (Set, error) {
	set, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return set, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scripts directory: %w", err)
	}

	seen := make(map[chairtypes.ScriptID]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !isScriptFile(ext) {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		id, err := chairtypes.ParseScriptID(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Join(dir, entry.Name()), err)
		}
		if previous, dup := seen[id]; dup {
			return nil, fmt.Errorf("script %s defined by both %s and %s", id, previous, entry.Name())
		}
		seen[id] = entry.Name()

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		s, err := Parse(id, path, data)
		if err != nil {
			return nil, err
		}
		set[id] = s
	}
	return set, nil
}

func isScriptFile(ext string) bool {
	for _, known := range scriptExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
