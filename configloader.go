package warden

import (
	"fmt"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	confmap "github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigPathKey names the CLI argument that selects an explicit config file.
const ConfigPathKey = "config"

var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"config/config.yaml",
	"config/config.yml",
	".config/config.yaml",
	".config/config.yml",
}

// LoadConfig builds a Config merging, in order, a YAML file, environment
// variables and CLI arguments; later sources win.
//
// Environment variables are matched by the namespace prefix, lower-cased and
// underscores become dots (WARDEN_HTTP_PORT -> http.port). CLI arguments use
// --key=value or --key value. --config=<path> selects the YAML file instead
// of the default search paths.
func LoadConfig(envNamespace string, args []string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.LoadSources(envNamespace, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSources merges the default sources into the receiver.
func (p *Config) LoadSources(envNamespace string, args []string) error {
	k := koanf.New(".")
	kv := parseArgsToMap(args)

	path, ok := configPathFromArgs(kv)
	if !ok {
		path, ok = findConfigFile()
	}
	if ok {
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if envNamespace != "" {
		envPrefix := strings.ToUpper(strings.TrimSuffix(envNamespace, "_")) + "_"
		transform := func(s string) string {
			s = strings.TrimPrefix(s, envPrefix)
			s = strings.ReplaceAll(s, "_", ".")
			return strings.ToLower(s)
		}
		if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
			return fmt.Errorf("config: loading env: %w", err)
		}
	}

	if len(kv) > 0 {
		if err := k.Load(confmap.Provider(kv, "."), nil); err != nil {
			return fmt.Errorf("config: loading args: %w", err)
		}
	}

	raw := map[string]any{}
	if err := k.Unmarshal("", &raw); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	p.MergeNested(raw)
	p.addAliasKeys()
	return nil
}

func configPathFromArgs(kv map[string]any) (string, bool) {
	raw, ok := kv[ConfigPathKey]
	if !ok {
		return "", false
	}
	delete(kv, ConfigPathKey)
	path, _ := raw.(string)
	path = strings.TrimSpace(path)
	return path, path != "" && path != "true"
}

func findConfigFile() (string, bool) {
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func parseArgsToMap(args []string) map[string]any {
	out := make(map[string]any)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || len(arg) <= 2 {
			continue
		}
		key := strings.TrimPrefix(arg, "--")
		if k, v, found := strings.Cut(key, "="); found {
			out[strings.ReplaceAll(k, "_", ".")] = v
			continue
		}
		value := "true"
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			value = args[i+1]
			i++
		}
		out[strings.ReplaceAll(key, "_", ".")] = value
	}
	return out
}
