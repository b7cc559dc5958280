package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/wemix/headwatch/internal/alerting"
)

// Output formats for Render
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const redacted = "<redacted>"

// Render encodes cfg in the given format
func Render(cfg *Config, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatTOML, "":
		return toml.Marshal(cfg)
	case FormatYAML, "yml":
		return yaml.Marshal(cfg)
	case FormatJSON:
		return json.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// FormatForPath picks the format from a file extension
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// Redacted returns a copy of cfg safe to print, with secrets, DSNs and
// header values masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.API.JWTSecret != "" {
		out.API.JWTSecret = redacted
	}
	if out.State.DSN != "" {
		out.State.DSN = redacted
	}
	if len(c.Probe.Headers) > 0 {
		out.Probe.Headers = make(map[string]string, len(c.Probe.Headers))
		for k := range c.Probe.Headers {
			out.Probe.Headers[k] = redacted
		}
	}

	out.Alerting.Channels = make([]alerting.ChannelConfig, len(c.Alerting.Channels))
	for i, ch := range c.Alerting.Channels {
		masked := ch
		masked.Config = make(map[string]interface{}, len(ch.Config))
		for k, v := range ch.Config {
			if isSecretKey(k) {
				v = redacted
			}
			masked.Config[k] = v
		}
		out.Alerting.Channels[i] = masked
	}
	return &out
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"token", "password", "secret", "webhook_url", "headers"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// WriteFile renders cfg to path atomically, refusing to overwrite unless force
func WriteFile(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := Render(cfg, FormatForPath(path))
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmpPath, path)
}
