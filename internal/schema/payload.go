package schema

import (
	"time"

	"github.com/yanun0323/errors"

	"apolo/pkg/exception"
)

// Payload is the open key/value body of an event. Required keys depend on the kind.
type Payload map[string]any

// Has reports whether key is present and non-nil.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns the string stored under key.
func (p Payload) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", errors.Wrapf(exception.ErrBusPayloadMissing, "key: %s", key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case Side:
		return string(s), nil
	case OptionType:
		return string(s), nil
	case OrderType:
		return string(s), nil
	default:
		return "", errors.Wrapf(exception.ErrBusPayloadType, "key: %s, type: %T", key, v)
	}
}

// StringOr returns the string under key or fallback when absent or mistyped.
func (p Payload) StringOr(key, fallback string) string {
	s, err := p.String(key)
	if err != nil {
		return fallback
	}
	return s
}

// Float returns the number stored under key as float64.
func (p Payload) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, errors.Wrapf(exception.ErrBusPayloadMissing, "key: %s", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errors.Wrapf(exception.ErrBusPayloadType, "key: %s, type: %T", key, v)
	}
}

// FloatOr returns the number under key or fallback when absent or mistyped.
func (p Payload) FloatOr(key string, fallback float64) float64 {
	f, err := p.Float(key)
	if err != nil {
		return fallback
	}
	return f
}

// Int returns the integer stored under key. Floats must be whole numbers.
func (p Payload) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, errors.Wrapf(exception.ErrBusPayloadMissing, "key: %s", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, errors.Wrapf(exception.ErrBusPayloadType, "key: %s, not integral: %v", key, n)
		}
		return int(n), nil
	default:
		return 0, errors.Wrapf(exception.ErrBusPayloadType, "key: %s, type: %T", key, v)
	}
}

// Time returns the timestamp stored under key. RFC3339 strings and unix nanos are accepted.
func (p Payload) Time(key string) (time.Time, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return time.Time{}, errors.Wrapf(exception.ErrBusPayloadMissing, "key: %s", key)
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parse time key: %s", key)
		}
		return parsed, nil
	case int64:
		return time.Unix(0, t).UTC(), nil
	default:
		return time.Time{}, errors.Wrapf(exception.ErrBusPayloadType, "key: %s, type: %T", key, v)
	}
}

// TimeOr returns the timestamp under key or fallback.
func (p Payload) TimeOr(key string, fallback time.Time) time.Time {
	t, err := p.Time(key)
	if err != nil {
		return fallback
	}
	return t
}

// Clone copies p together with every nested payload, map and slice. Scalars and other
// values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Payload:
		return x.Clone()
	case map[string]any:
		return map[string]any(Payload(x).Clone())
	case []Payload:
		out := make([]Payload, len(x))
		for i := range x {
			out[i] = x[i].Clone()
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i := range x {
			out[i] = map[string]any(Payload(x[i]).Clone())
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	default:
		return v
	}
}

// List returns the sequence of nested payloads stored under key.
func (p Payload) List(key string) ([]Payload, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, errors.Wrapf(exception.ErrBusPayloadMissing, "key: %s", key)
	}
	switch l := v.(type) {
	case []Payload:
		return l, nil
	case []map[string]any:
		out := make([]Payload, len(l))
		for i := range l {
			out[i] = Payload(l[i])
		}
		return out, nil
	case []any:
		out := make([]Payload, 0, len(l))
		for i, item := range l {
			switch m := item.(type) {
			case Payload:
				out = append(out, m)
			case map[string]any:
				out = append(out, Payload(m))
			default:
				return nil, errors.Wrapf(exception.ErrBusPayloadType, "key: %s[%d], type: %T", key, i, item)
			}
		}
		return out, nil
	default:
		return nil, errors.Wrapf(exception.ErrBusPayloadType, "key: %s, type: %T", key, v)
	}
}

// Object returns the nested payload stored under key.
func (p Payload) Object(key string) (Payload, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, errors.Wrapf(exception.ErrBusPayloadMissing, "key: %s", key)
	}
	switch m := v.(type) {
	case Payload:
		return m, nil
	case map[string]any:
		return Payload(m), nil
	default:
		return nil, errors.Wrapf(exception.ErrBusPayloadType, "key: %s, type: %T", key, v)
	}
}
