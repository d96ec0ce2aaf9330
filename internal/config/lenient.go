package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"hipot/internal/station"
)

type valueKind int

const (
	kindFloat valueKind = iota
	kindInt
	kindBool
)

var parameterKinds = map[string]valueKind{
	"voltage":               kindFloat,
	"current_high_limit":    kindFloat,
	"current_low_limit":     kindFloat,
	"ramp_up_time":          kindFloat,
	"dwell_time":            kindFloat,
	"ramp_down_time":        kindFloat,
	"arc_sense_level":       kindFloat,
	"arc_detection":         kindBool,
	"frequency":             kindInt,
	"continuity_test":       kindBool,
	"resistance_high_limit": kindFloat,
	"resistance_low_limit":  kindFloat,
	"resistance_offset":     kindFloat,
}

// decodeLenient parses data into cfg. Values in the parameter and cavity
// sections that cannot be coerced are dropped so the defaults already in cfg
// survive; each drop is returned as a warning.
func decodeLenient(data []byte, cfg *Config) ([]error, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var warnings []error
	for _, section := range []string{"continuity", "hypot"} {
		warnings = append(warnings, sanitizeSection(raw, section, func(key string) (valueKind, bool) {
			kind, ok := parameterKinds[key]
			return kind, ok
		})...)
	}
	for _, section := range []string{"run_cavity", "laser_enabled"} {
		warnings = append(warnings, sanitizeSection(raw, section, func(key string) (valueKind, bool) {
			return kindBool, validCavityKey(key)
		})...)
	}

	cleaned, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := toml.Unmarshal(cleaned, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return warnings, nil
}

func sanitizeSection(raw map[string]any, section string, kindOf func(string) (valueKind, bool)) []error {
	value, ok := raw[section]
	if !ok {
		return nil
	}
	table, ok := value.(map[string]any)
	if !ok {
		delete(raw, section)
		return []error{configWarning(section, "", value, "expected a table")}
	}

	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var warnings []error
	for _, key := range keys {
		kind, known := kindOf(key)
		if !known {
			warnings = append(warnings, configWarning(section, key, table[key], "unknown key ignored"))
			delete(table, key)
			continue
		}
		coerced, ok := coerce(table[key], kind)
		if !ok {
			warnings = append(warnings, configWarning(section, key, table[key], "invalid value; using default"))
			delete(table, key)
			continue
		}
		table[key] = coerced
	}
	return warnings
}

func coerce(value any, kind valueKind) (any, bool) {
	switch kind {
	case kindFloat:
		switch v := value.(type) {
		case float64:
			return v, !math.IsNaN(v) && !math.IsInf(v, 0)
		case int64:
			return float64(v), true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, false
			}
			return f, true
		}
	case kindInt:
		switch v := value.(type) {
		case int64:
			return v, true
		case float64:
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return nil, false
			}
			return int64(v), true
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, false
			}
			return n, true
		}
	case kindBool:
		switch v := value.(type) {
		case bool:
			return v, true
		case int64:
			if v == 0 || v == 1 {
				return v == 1, true
			}
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, false
			}
			return b, true
		}
	}
	return nil, false
}

func validCavityKey(key string) bool {
	if !strings.HasPrefix(key, "cavity") {
		return false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, "cavity"))
	if err != nil {
		return false
	}
	return n >= 1 && n <= CavityCount && key == cavityKey(n)
}

func configWarning(section, key string, value any, message string) error {
	field := section
	if key != "" {
		field = section + "." + key
	}
	return station.Wrap(station.ErrConfig, "config", field, fmt.Sprintf("%s (got %v)", message, value), nil)
}
