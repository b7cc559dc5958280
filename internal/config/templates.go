package config

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed templates/*.toml
var templatesFS embed.FS

// Templates lists the embedded presets usable with `config init --template`
func Templates() []string {
	entries, err := fs.ReadDir(templatesFS, "templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
		}
	}
	sort.Strings(names)
	return names
}

// FromTemplate returns the default configuration with a preset applied
func FromTemplate(name string) (*Config, error) {
	data, err := templatesFS.ReadFile(path.Join("templates", name+".toml"))
	if err != nil {
		return nil, fmt.Errorf("template %s not found (available: %s)", name, strings.Join(Templates(), ", "))
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return cfg, nil
}
