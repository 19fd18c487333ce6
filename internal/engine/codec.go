package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// FractionScale converts between a Fraction and its stored form.
const FractionScale = 100

// Encode converts v into a driver value.
//
//	Null                   -> nil
//	String, Icon, URL      -> string
//	Timestamp              -> time.Time
//	Signed                 -> int64
//	Unsigned, Boolean, State -> int64 (unsigned range)
//	Real                   -> float64
//	Fraction               -> float64 scaled by FractionScale
//
// Objects and reports have no column mapping and are UnsupportedType.
func Encode(v value.Value) (any, error) {
	switch v := v.(type) {
	case nil, value.Null:
		return nil, nil
	case value.String:
		return string(v), nil
	case value.Icon:
		return string(v), nil
	case value.URL:
		return string(v), nil
	case value.Timestamp:
		return v.Time(), nil
	case value.Signed:
		return int64(v), nil
	case value.Unsigned:
		if uint64(v) > math.MaxInt64 {
			return nil, sqlerr.New(sqlerr.KindBind, "unsigned value %d overflows the engine integer range", uint64(v))
		}
		return int64(v), nil
	case value.Boolean:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case value.State:
		return int64(v), nil
	case value.Real:
		return float64(v), nil
	case value.Fraction:
		return float64(v) * FractionScale, nil
	default:
		return nil, sqlerr.New(sqlerr.KindUnsupportedType, "cannot bind a %s value", v.Type())
	}
}

type columnClass int

const (
	classUnknown columnClass = iota
	classText
	classSigned
	classUnsigned
	classBoolean
	classReal
	classFraction
	classTimestamp
	classState
)

// classify maps a database type name to the value type it decodes into.
func classify(databaseType string) columnClass {
	t := strings.ToUpper(strings.TrimSpace(databaseType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	switch {
	case t == "":
		return classUnknown
	case t == "FRACTION":
		return classFraction
	case t == "STATE":
		return classState
	case strings.Contains(t, "UNSIGNED"),
		strings.HasPrefix(t, "U") && strings.Contains(t, "INT"):
		return classUnsigned
	case strings.HasPrefix(t, "BOOL"):
		return classBoolean
	case isIntegerType(t):
		return classSigned
	case t == "REAL", t == "NUMERIC", t == "DECIMAL",
		strings.HasPrefix(t, "FLOAT"), strings.HasPrefix(t, "DOUBLE"):
		return classReal
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATETIME", t == "DATE":
		return classTimestamp
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"),
		strings.Contains(t, "CLOB"), t == "UUID", t == "JSON", t == "NAME":
		return classText
	}
	return classUnknown
}

func isIntegerType(t string) bool {
	if t == "INTEGER" || strings.HasSuffix(t, "INT") {
		return true
	}
	// INT2, INT4, INT8
	if rest, ok := strings.CutPrefix(t, "INT"); ok && rest != "" {
		_, err := strconv.Atoi(rest)
		return err == nil
	}
	return false
}

// Decode converts a fetched column into a value. SQL NULL becomes an empty
// String. When the type name is unknown the driver's Go type decides.
func Decode(c Column) value.Value {
	if c.Raw == nil {
		return value.String("")
	}

	switch classify(c.DatabaseType) {
	case classText:
		return value.String(asString(c.Raw))
	case classSigned:
		if n, ok := asInt64(c.Raw); ok {
			return value.Signed(n)
		}
	case classUnsigned:
		if n, ok := asUint64(c.Raw); ok {
			return value.Unsigned(n)
		}
	case classBoolean:
		if b, ok := asBool(c.Raw); ok {
			return value.Boolean(b)
		}
	case classReal:
		if f, ok := asFloat64(c.Raw); ok {
			return value.Real(f)
		}
	case classFraction:
		if f, ok := asFloat64(c.Raw); ok {
			return value.Fraction(f / FractionScale)
		}
	case classTimestamp:
		if ts, ok := asTime(c.Raw); ok {
			return value.NewTimestamp(ts)
		}
	case classState:
		if n, ok := asUint64(c.Raw); ok && n <= math.MaxUint32 {
			return value.State(n)
		}
		if s, ok := value.ParseState(asString(c.Raw)); ok {
			return s
		}
	}

	return decodeRaw(c.Raw)
}

func decodeRaw(raw any) value.Value {
	switch v := raw.(type) {
	case int64:
		return value.Signed(v)
	case int32:
		return value.Signed(v)
	case int16:
		return value.Signed(v)
	case int8:
		return value.Signed(v)
	case int:
		return value.Signed(v)
	case uint64:
		return value.Unsigned(v)
	case uint32:
		return value.Unsigned(v)
	case uint16:
		return value.Unsigned(v)
	case uint8:
		return value.Unsigned(v)
	case float64:
		return value.Real(v)
	case float32:
		return value.Real(v)
	case bool:
		return value.Boolean(v)
	case time.Time:
		return value.NewTimestamp(v)
	default:
		return value.String(asString(raw))
	}
}

func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(raw)
	}
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string, []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(asString(v)), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asUint64(raw any) (uint64, bool) {
	switch v := raw.(type) {
	case uint64:
		return v, true
	case string, []byte:
		n, err := strconv.ParseUint(strings.TrimSpace(asString(v)), 10, 64)
		return n, err == nil
	}
	n, ok := asInt64(raw)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func asFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case interface{ Float64() float64 }:
		return v.Float64(), true
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(asString(v)), 64)
		return f, err == nil
	}
	n, ok := asInt64(raw)
	return float64(n), ok
}

func asBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string, []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(asString(v)))
		return b, err == nil
	}
	n, ok := asInt64(raw)
	return n != 0, ok
}

// timeLayouts are tried in order when a timestamp arrives as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func asTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case string, []byte:
		s := strings.TrimSpace(asString(v))
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
