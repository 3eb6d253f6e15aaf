package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// FOCUS_STACKER_SORTER_INTERVAL.
const EnvPrefix = "FOCUS_STACKER"

// AppName names the configuration directory.
const AppName = "focus-stacker"

// NewViper returns a viper instance with the defaults registered and
// environment overrides enabled. explicitPath, when set, is the only config
// file considered.
func NewViper(explicitPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, kv := range Flatten(Default()) {
		v.SetDefault(kv.Key, kv.Value)
	}
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return v
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range SearchDirs() {
		v.AddConfigPath(dir)
	}
	return v
}

// ReadFile loads the config file into v. A missing file is only an error
// when strict is set.
func ReadFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !strict {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes the effective configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SearchDirs lists the directories searched for config.yaml, most specific
// first.
func SearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", AppName))
	}
	return dirs
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	dirs := SearchDirs()
	if len(dirs) == 0 {
		return "config.yaml"
	}
	return filepath.Join(dirs[0], "config.yaml")
}

// Marshal renders cfg as yaml.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Write stores cfg at path, creating parent directories. An existing file
// is only replaced when force is set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// KeyValue is one dotted configuration key and its value.
type KeyValue struct {
	Key   string
	Value any
}

// Flatten lists every leaf of cfg under its dotted key, e.g.
// "merge.methods.ab", sorted by key. Keys follow the yaml field names.
func Flatten(cfg Config) []KeyValue {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return nil
	}
	var tree map[string]any
	if err := node.Decode(&tree); err != nil {
		return nil
	}
	var out []KeyValue
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			out = append(out, KeyValue{Key: key, Value: val})
		}
	}
	walk("", tree)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
