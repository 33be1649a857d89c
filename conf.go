package manifold

import (
	"fmt"
	"time"
)

// Conf carries a stage's configuration. Keys and value shapes are defined by
// the individual stage; the engine forwards a Conf verbatim and never
// inspects it.
type Conf map[string]any

// Source describes one input of a Collection: a "type" field naming the
// stage to run (DefaultSourceType when absent), with every remaining field
// forwarded as that stage's configuration.
type Source map[string]any

// DefaultSourceType is the stage used by sources that do not declare one.
const DefaultSourceType = "fetch"

// StageType returns the stage name declared by the source descriptor.
func (s Source) StageType() string {
	if t, ok := s["type"].(string); ok && t != "" {
		return t
	}
	return DefaultSourceType
}

// Conf returns the source's fields minus the type declaration, as the
// configuration for its stage.
func (s Source) Conf() Conf {
	conf := make(Conf, len(s))
	for k, v := range s {
		if k == "type" {
			continue
		}
		conf[k] = v
	}
	return conf
}

// GetString returns the string stored under key, or fallback when the key is
// absent or not a string.
func (c Conf) GetString(key, fallback string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fallback
}

// GetInt returns the integer stored under key. Numeric values arrive as
// int, int64 or float64 depending on how the configuration was decoded; all
// three are accepted.
func (c Conf) GetInt(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// GetFloat returns the float stored under key, accepting integer values too.
func (c Conf) GetFloat(key string, fallback float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// GetBool returns the boolean stored under key, or fallback.
func (c Conf) GetBool(key string, fallback bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return fallback
}

// GetDuration returns the duration stored under key. Accepts a
// time.Duration, a string in time.ParseDuration syntax, or a number of
// seconds.
func (c Conf) GetDuration(key string, fallback time.Duration) time.Duration {
	switch v := c[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return fallback
}
