package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const fileHeader = `# tsync configuration
#
# remote.kind selects the remote store: "sql" (dialect postgres or libsql)
# or "googletasks". Every key can be overridden with TSYNC_<SECTION>_<KEY>.

`

// WriteDefault writes the default configuration to path. An existing file is
// left untouched and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, fileHeader); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := Encode(f, Defaults(filepath.Dir(path)), "toml"); err != nil {
		return err
	}
	return f.Close()
}

// Encode writes cfg as "toml" or "yaml".
func Encode(w io.Writer, cfg *Config, format string) error {
	settings := cfg.Settings()
	switch format {
	case "toml":
		if err := toml.NewEncoder(w).Encode(settings); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q (want toml or yaml)", format)
	}
	return nil
}
