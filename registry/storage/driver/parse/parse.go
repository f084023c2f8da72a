// Package parse reads typed values out of the loosely typed parameter maps
// drivers receive from configuration.
package parse

import (
	"fmt"
	"strconv"
	"time"
)

// Bool reads a boolean parameter, accepting both booleans and strings.
func Bool(parameters map[string]interface{}, name string, defaultt bool) (bool, error) {
	switch value := parameters[name].(type) {
	case string:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return defaultt, fmt.Errorf("cannot parse %q string as bool: %w", name, err)
		}

		return v, nil
	case bool:
		return value, nil
	case nil:
		return defaultt, nil
	default:
		return defaultt, fmt.Errorf("cannot parse %q with type %T as bool", name, value)
	}
}

// String reads a string parameter. An empty string is an error, an absent
// parameter yields defaultt.
func String(parameters map[string]interface{}, name string, defaultt string) (string, error) {
	switch value := parameters[name].(type) {
	case string:
		if value == "" {
			return defaultt, fmt.Errorf("parameter %q cannot be empty", name)
		}
		return value, nil
	case nil:
		return defaultt, nil
	default:
		return defaultt, fmt.Errorf("cannot parse %q with type %T as string", name, value)
	}
}

// Int64 reads an integer parameter. YAML decodes numbers as int, so every
// integer kind is accepted along with numeric strings.
func Int64(parameters map[string]interface{}, name string, defaultt int64) (int64, error) {
	switch value := parameters[name].(type) {
	case string:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return defaultt, fmt.Errorf("cannot parse %q string as int: %w", name, err)
		}
		return v, nil
	case int:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case uint:
		return int64(value), nil
	case uint64:
		return int64(value), nil
	case nil:
		return defaultt, nil
	default:
		return defaultt, fmt.Errorf("cannot parse %q with type %T as int", name, value)
	}
}

// Duration reads a duration parameter from a string such as "24h" or from a
// duration value.
func Duration(parameters map[string]interface{}, name string, defaultt time.Duration) (time.Duration, error) {
	switch value := parameters[name].(type) {
	case string:
		v, err := time.ParseDuration(value)
		if err != nil {
			return defaultt, fmt.Errorf("cannot parse %q string as duration: %w", name, err)
		}
		return v, nil
	case time.Duration:
		return value, nil
	case nil:
		return defaultt, nil
	default:
		return defaultt, fmt.Errorf("cannot parse %q with type %T as duration", name, value)
	}
}
