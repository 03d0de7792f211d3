// Package config loads pyobfuscate settings from defaults, an optional
// YAML file, PYOBFUSCATE_ environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "PYOBFUSCATE_"

// FileNames are looked up in the project root when no file is given.
var FileNames = []string{".pyobfuscate.yaml", ".pyobfuscate.yml"}

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// listKeys hold comma-separated values when set from the environment.
var listKeys = map[string]bool{
	"preserve": true,
	"policies": true,
}

// flagKeys maps flag names to config keys where the two differ.
var flagKeys = map[string]string{
	"policy": "policies",
}

// Config holds every setting of a run.
type Config struct {
	Workers  int      `koanf:"workers"`
	LogLevel string   `koanf:"log_level"`
	Ledger   string   `koanf:"ledger"`
	Preserve []string `koanf:"preserve"`
	Policies []string `koanf:"policies"`
	Verify   bool     `koanf:"verify"`
	Format   string   `koanf:"format"`

	// File is the configuration file that was read, if any.
	File string `koanf:"-"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() map[string]any {
	return map[string]any{
		"workers":   0,
		"log_level": "info",
		"ledger":    "",
		"preserve":  []string{},
		"policies":  []string{},
		"verify":    true,
		"format":    FormatText,
	}
}

// Load builds a Config. Precedence, highest first: changed flags,
// environment, the YAML file, defaults. cfgFile may be empty, in which case
// root is searched for one of FileNames; flags may be nil.
func Load(cfgFile, root string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	used := findFile(cfgFile, root)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", used, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[key]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.File = used
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("config: unknown format %q (want text, json or yaml)", c.Format)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("config: log_level: %w", err)
	}
	return lvl, nil
}

func findFile(explicit, root string) string {
	if explicit != "" {
		return explicit
	}
	if root == "" {
		return ""
	}
	for _, name := range FileNames {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
