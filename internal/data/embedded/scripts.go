// Package embedded provides access to the default chair scripts compiled into the binary.
// A profile's scripts directory may override any of them by name.
package embedded

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

// ScriptsFS contains the default script definitions.
//
//go:embed scripts/*.yaml
var ScriptsFS embed.FS

const scriptExt = ".yaml"

// ScriptLoader reads default scripts from the embedded filesystem.
type ScriptLoader struct{}

// NewScriptLoader creates a ScriptLoader.
func NewScriptLoader() *ScriptLoader {
	return &ScriptLoader{}
}

// LoadScript returns the YAML definition of the named default script.
func (s *ScriptLoader) LoadScript(name string) ([]byte, error) {
	data, err := ScriptsFS.ReadFile(path.Join("scripts", strings.TrimSuffix(name, scriptExt)+scriptExt))
	if err != nil {
		return nil, fmt.Errorf("default script not found: %s", name)
	}
	return data, nil
}

// ListAvailableScripts returns the names, without extension, of every default script.
func (s *ScriptLoader) ListAvailableScripts() ([]string, error) {
	entries, err := ScriptsFS.ReadDir("scripts")
	if err != nil {
		return nil, fmt.Errorf("failed to read default scripts: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), scriptExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), scriptExt))
	}
	return names, nil
}

// GetScriptPath returns the virtual path reported for an embedded script.
func (s *ScriptLoader) GetScriptPath(name string) string {
	return fmt.Sprintf("embedded://scripts/%s%s", name, scriptExt)
}
