package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can express it as a string
// ("10s", "1m30s") across all three supported formats (yaml/json/toml).
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.fromAny(v)
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return d.fromAny(v)
}

// UnmarshalText backs BurntSushi/toml string decoding via encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.fromAny(string(text))
}

func (d *Duration) fromAny(v interface{}) error {
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case int64:
		*d = Duration(time.Duration(value))
		return nil
	default:
		return fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}
