package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// MarshalJSON encodes the object with keys in insertion order.
// A report-shaped object encodes as its report.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o.report != nil {
		return o.report.MarshalJSON()
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(o.fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the report as {"columns":[...],"rows":[[...],...]}.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"columns":`)
	columns := r.columns
	if columns == nil {
		columns = []string{}
	}
	colBytes, err := json.Marshal(columns)
	if err != nil {
		return nil, err
	}
	buf.Write(colBytes)
	buf.WriteString(`,"rows":[`)
	for i := 0; i < r.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for c, cell := range r.Row(i) {
			if c > 0 {
				buf.WriteByte(',')
			}
			cellBytes, err := MarshalValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, r.columns[c], err)
			}
			buf.Write(cellBytes)
		}
		buf.WriteByte(']')
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalValue encodes any Value as JSON.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Icon:
		return json.Marshal(string(val))
	case URL:
		return json.Marshal(string(val))
	case Signed:
		return json.Marshal(int64(val))
	case Unsigned:
		return json.Marshal(uint64(val))
	case Real:
		return marshalFloat(float64(val))
	case Fraction:
		return marshalFloat(float64(val))
	case Boolean:
		return json.Marshal(bool(val))
	case Timestamp:
		return json.Marshal(time.Time(val).Format(time.RFC3339Nano))
	case State:
		return json.Marshal(val.String())
	case *Object:
		return val.MarshalJSON()
	case *Report:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// ParseJSON decodes a JSON object into an Object.
// Integral numbers become Signed, other numbers Real. Keys of nested objects
// are sorted since JSON object order is not preserved by the decoder.
func ParseJSON(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse json object: %w", err)
	}
	v, err := FromAny(raw)
	if err != nil {
		return nil, err
	}
	return v.(*Object), nil
}

// FromAny converts decoded JSON/YAML data and plain Go scalars into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Boolean(val), nil
	case int:
		return Signed(val), nil
	case int32:
		return Signed(val), nil
	case int64:
		return Signed(val), nil
	case uint:
		return Unsigned(val), nil
	case uint32:
		return Unsigned(val), nil
	case uint64:
		return Unsigned(val), nil
	case float32:
		return Real(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Signed(int64(val)), nil
		}
		return Real(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Signed(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Real(f), nil
	case time.Time:
		return Timestamp(val), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			elem, err := FromAny(val[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj.Set(k, elem)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
