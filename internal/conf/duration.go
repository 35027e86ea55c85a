package conf

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration for gateway settings such as the upstream
// timeout and the probe interval. It reads and writes as "15s" style strings
// in config files, env overrides and the JSON settings dump, so operators
// never see raw nanosecond counts.
type Duration time.Duration

// Std converts to time.Duration for timers and http.Client.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// OrDefault returns d, or def when d is zero or negative.
func (d Duration) OrDefault(def time.Duration) Duration {
	if d <= 0 {
		return Duration(def)
	}
	return d
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON writes the duration as a string like "30s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string ("3s"), a number read as
// nanoseconds, or null which resets the value to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration string %q: %w", value, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(int64(value)))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration value: %v (type %T)", v, v)
	}
	return nil
}

// MarshalYAML writes the duration in its human-readable form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts "15s" style values. A bare integer is taken as
// nanoseconds, which is what a config written with a plain time.Duration
// field would contain.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar duration value, got %v", value.Kind)
	}
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if nanos, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(nanos))
		return nil
	}
	return fmt.Errorf("invalid duration %q: expected format like \"15s\" or \"1m\"", value.Value)
}

var durationType = reflect.TypeFor[Duration]()

// DurationDecodeHook lets viper fill Duration fields from defaults, files and
// RECIPEGW_* env vars. Strings go through time.ParseDuration; integers are
// nanoseconds. The stock time.Duration and comma-separated slice hooks are
// chained after it so env overrides such as RECIPEGW_CACHE_PRECACHE="/,/app.js"
// still decode into []string.
func DurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(_, to reflect.Type, data any) (any, error) {
			if to != durationType {
				return data, nil
			}
			switch v := data.(type) {
			case string:
				parsed, err := time.ParseDuration(v)
				if err != nil {
					return nil, fmt.Errorf("invalid duration %q: %w", v, err)
				}
				return Duration(parsed), nil
			case int:
				return Duration(time.Duration(v)), nil
			case int64:
				return Duration(time.Duration(v)), nil
			case float64:
				return Duration(time.Duration(int64(v))), nil
			default:
				return data, nil
			}
		}),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
