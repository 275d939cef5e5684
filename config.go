package warden

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config stores configuration values keyed by dot separated, lower-cased
// property paths such as "core.service.404-redirect.enabled".
type Config struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConfig constructs an empty property store.
func NewConfig() *Config {
	return &Config{values: make(map[string]any)}
}

// Clone returns a copy of the stored properties.
func (p *Config) Clone() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cloned := make(map[string]any, len(p.values))
	for k, v := range p.values {
		cloned[k] = v
	}
	return &Config{values: cloned}
}

// Set persists a value under the provided property path.
func (p *Config) Set(path string, value any) {
	p.mu.Lock()
	p.values[normalise(path)] = value
	p.mu.Unlock()
}

// MergeNested accepts nested maps, as decoded from YAML, and flattens them.
func (p *Config) MergeNested(values map[string]any) {
	flattenInto(p, "", values)
}

// MergeYAML unmarshals a YAML document and merges it into the store.
func (p *Config) MergeYAML(data []byte) error {
	var raw map[string]any
	if err := yamlv3.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: yaml: %w", err)
	}
	p.MergeNested(raw)
	return nil
}

// Get retrieves a raw value by property path.
func (p *Config) Get(path string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[normalise(path)]
	return v, ok
}

// GetString retrieves the value as a string.
func (p *Config) GetString(path string) (string, bool) {
	raw, ok := p.Get(path)
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	case []byte:
		return string(v), true
	default:
		return fmt.Sprintf("%v", raw), true
	}
}

// GetInt retrieves the value as an int.
func (p *Config) GetInt(path string) (int, bool, error) {
	raw, ok := p.Get(path)
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case uint64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		return parsed, true, err
	default:
		return 0, true, fmt.Errorf("config: cannot convert %T to int", raw)
	}
}

// GetBool retrieves the value as a bool.
func (p *Config) GetBool(path string) (bool, bool, error) {
	raw, ok := p.Get(path)
	if !ok {
		return false, false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, true, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return parsed, true, err
	case int:
		return v != 0, true, nil
	case int64:
		return v != 0, true, nil
	case uint64:
		return v != 0, true, nil
	case float64:
		return v != 0, true, nil
	default:
		return false, true, fmt.Errorf("config: cannot convert %T to bool", raw)
	}
}

// GetDuration retrieves the value as a time.Duration.
func (p *Config) GetDuration(path string) (time.Duration, bool, error) {
	raw, ok := p.Get(path)
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, true, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		return d, true, err
	case int:
		return time.Duration(v), true, nil
	case int64:
		return time.Duration(v), true, nil
	default:
		return 0, true, fmt.Errorf("config: cannot convert %T to duration", raw)
	}
}

// GetStringSlice returns a slice parsed from a list or a comma separated string.
func (p *Config) GetStringSlice(path string) ([]string, bool) {
	raw, ok := p.Get(path)
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out, true
	case string:
		if v == "" {
			return nil, true
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, true
	default:
		return []string{fmt.Sprint(v)}, true
	}
}

// GetStringOrDef retrieves the value as a string or returns def when not found.
func (p *Config) GetStringOrDef(path string, def string) string {
	if v, ok := p.GetString(path); ok && v != "" {
		return v
	}
	return def
}

// GetIntOrDef retrieves the value as an int or returns def when not found or invalid.
func (p *Config) GetIntOrDef(path string, def int) int {
	if v, ok, err := p.GetInt(path); ok && err == nil {
		return v
	}
	return def
}

// GetDurationOrDef retrieves the value as a duration or returns def when not found or invalid.
func (p *Config) GetDurationOrDef(path string, def time.Duration) time.Duration {
	if v, ok, err := p.GetDuration(path); ok && err == nil {
		return v
	}
	return def
}

// GetBoolOrTrue retrieves the value as a bool or returns true when not found
// or invalid. Feature flags default to enabled through this getter.
func (p *Config) GetBoolOrTrue(path string) bool {
	if v, ok, err := p.GetBool(path); ok && err == nil {
		return v
	}
	return true
}

// GetBoolOrFalse retrieves the value as a bool or returns false when not found or invalid.
func (p *Config) GetBoolOrFalse(path string) bool {
	if v, ok, err := p.GetBool(path); ok && err == nil {
		return v
	}
	return false
}

// GetPort retrieves a listen address and normalizes it, falling back to defaultPort.
func (p *Config) GetPort(path string, defaultPort string) string {
	port, _ := p.GetString(path)
	return NormalizePort(port, defaultPort)
}

// NormalizePort ensures ports carry a host separator and fall back to
// ":8080" when neither value is set.
func NormalizePort(port, fallback string) string {
	p := strings.TrimSpace(port)
	if p == "" {
		p = fallback
	}
	if p == "" {
		return ":8080"
	}
	if strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

// Unmarshal decodes the stored properties into target using "koanf" struct
// tags. When path is non-empty only that subtree is decoded.
func (p *Config) Unmarshal(path string, target any) error {
	if target == nil {
		return fmt.Errorf("config: nil target")
	}
	nested := p.snapshot()
	if path != "" {
		var ok bool
		nested, ok = walkNested(nested, normalise(path))
		if !ok {
			nested = map[string]any{}
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("config: decoder: %w", err)
	}
	if err := decoder.Decode(nested); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

func flattenInto(p *Config, prefix string, values map[string]any) {
	for k, v := range values {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(p, path, nested)
			continue
		}
		p.Set(path, v)
	}
}

func normalise(path string) string {
	segments := strings.Split(path, ".")
	for i := range segments {
		segments[i] = strings.ToLower(strings.TrimSpace(segments[i]))
	}
	return strings.Join(segments, ".")
}

func (p *Config) snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	root := make(map[string]any)
	for key, value := range p.values {
		assignNested(root, strings.Split(key, "."), value)
	}
	return root
}

func assignNested(root map[string]any, parts []string, value any) {
	if len(parts) == 0 {
		return
	}
	head := parts[0]
	if len(parts) == 1 {
		if _, isMap := root[head].(map[string]any); isMap {
			return
		}
		root[head] = value
		return
	}
	next, ok := root[head].(map[string]any)
	if !ok {
		next = make(map[string]any)
		root[head] = next
	}
	assignNested(next, parts[1:], value)
}

func walkNested(root map[string]any, path string) (map[string]any, bool) {
	current := root
	for _, segment := range strings.Split(strings.Trim(path, "."), ".") {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return map[string]any{}, false
		}
		current = next
	}
	return current, true
}

// addAliasKeys registers underscore-joined aliases for dotted keys so that
// env vars like WARDEN_ADMIN_INTERNAL_ONLY (admin.internal.only) also answer
// to admin.internal_only.
func (p *Config) addAliasKeys() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, value := range p.values {
		if !strings.Contains(key, ".") {
			continue
		}
		current := strings.Split(key, ".")
		for i := len(current) - 1; i > 0; i-- {
			current = mergeSegments(current, i-1)
			alias := strings.Join(current, ".")
			if _, exists := p.values[alias]; !exists {
				p.values[alias] = value
			}
		}
	}
}

func mergeSegments(parts []string, idx int) []string {
	merged := make([]string, 0, len(parts)-1)
	merged = append(merged, parts[:idx]...)
	merged = append(merged, parts[idx]+"_"+parts[idx+1])
	merged = append(merged, parts[idx+2:]...)
	return merged
}
