package nextcloud

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"
)

// Time is a time.Time that travels as Unix milliseconds on the wire, which
// is how the server serializes timestamps. The zero value marshals as 0.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time.
func NewTime(t time.Time) Time { return Time{t} }

// MarshalJSON writes the time as epoch milliseconds.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// UnmarshalJSON accepts epoch milliseconds, null, or a date string.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	if msec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if msec == 0 {
			t.Time = time.Time{}
		} else {
			t.Time = time.UnixMilli(msec)
		}
		return nil
	}
	parsed, err := dateparse.ParseAny(strings.Trim(s, `"`))
	if err != nil {
		return fmt.Errorf("nextcloud: cannot parse %s as time: %w", s, err)
	}
	t.Time = parsed
	return nil
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	ncTimeType = reflect.TypeOf(Time{})
)

// timestampHook converts the wire representations of timestamps (epoch
// millisecond numbers, date strings) into time.Time or Time targets.
func timestampHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType && to != ncTimeType {
		return data, nil
	}

	var parsed time.Time
	switch from.Kind() {
	case reflect.Float64, reflect.Float32:
		msec := int64(reflect.ValueOf(data).Float())
		if msec != 0 {
			parsed = time.UnixMilli(msec)
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		msec := reflect.ValueOf(data).Int()
		if msec != 0 {
			parsed = time.UnixMilli(msec)
		}
	case reflect.String:
		s := data.(string)
		if s == "" {
			break
		}
		if msec, err := strconv.ParseInt(s, 10, 64); err == nil {
			if msec != 0 {
				parsed = time.UnixMilli(msec)
			}
			break
		}
		t, err := dateparse.ParseAny(s)
		if err != nil {
			return nil, fmt.Errorf("nextcloud: cannot parse %q as time: %w", s, err)
		}
		parsed = t
	default:
		return data, nil
	}

	if to == ncTimeType {
		return Time{parsed}, nil
	}
	return parsed, nil
}

// Decode converts an untyped payload (maps, slices, scalars from the
// normalizer) into T. Field matching follows json tags so the same structs
// serve both directions.
func Decode[T any](v any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(timestampHook),
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		Squash:           true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(v); err != nil {
		return out, fmt.Errorf("nextcloud: decode: %w", err)
	}
	return out, nil
}

// DecodeSlice converts each element of items into T.
func DecodeSlice[T any](items []any) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := Decode[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
