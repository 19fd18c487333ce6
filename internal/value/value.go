package value

import (
	"fmt"
	"strconv"
	"time"
)

// Type identifies the kind of a Value.
type Type int

const (
	TypeUndefined Type = iota
	TypeString
	TypeIcon
	TypeURL
	TypeSigned
	TypeUnsigned
	TypeReal
	TypeFraction
	TypeBoolean
	TypeTimestamp
	TypeState
	TypeObject
	TypeReport
)

var typeNames = map[Type]string{
	TypeUndefined: "undefined",
	TypeString:    "string",
	TypeIcon:      "icon",
	TypeURL:       "url",
	TypeSigned:    "signed",
	TypeUnsigned:  "unsigned",
	TypeReal:      "real",
	TypeFraction:  "fraction",
	TypeBoolean:   "boolean",
	TypeTimestamp: "timestamp",
	TypeState:     "state",
	TypeObject:    "object",
	TypeReport:    "report",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Value is a sealed interface: only the types in this package implement it.
type Value interface {
	Type() Type
	String() string
	value()
}

// Source is anything parameters can be looked up in.
// A miss returns (nil, false); a present Null returns (Null{}, true).
type Source interface {
	Lookup(key string) (Value, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(key string) (Value, bool)

// Lookup implements Source.
func (f SourceFunc) Lookup(key string) (Value, bool) {
	return f(key)
}

// Null is an explicitly present value without a type. It binds as SQL NULL.
type Null struct{}

func (Null) value()         {}
func (Null) Type() Type     { return TypeUndefined }
func (Null) String() string { return "" }

// String is a text leaf.
type String string

func (String) value()           {}
func (String) Type() Type       { return TypeString }
func (s String) String() string { return string(s) }

// Icon is a text leaf naming an icon.
type Icon string

func (Icon) value()           {}
func (Icon) Type() Type       { return TypeIcon }
func (i Icon) String() string { return string(i) }

// URL is a text leaf holding a URL.
type URL string

func (URL) value()           {}
func (URL) Type() Type       { return TypeURL }
func (u URL) String() string { return string(u) }

// Signed is a signed integer leaf.
type Signed int64

func (Signed) value()           {}
func (Signed) Type() Type       { return TypeSigned }
func (s Signed) String() string { return strconv.FormatInt(int64(s), 10) }

// Unsigned is an unsigned integer leaf.
type Unsigned uint64

func (Unsigned) value()           {}
func (Unsigned) Type() Type       { return TypeUnsigned }
func (u Unsigned) String() string { return strconv.FormatUint(uint64(u), 10) }

// Real is a floating point leaf.
type Real float64

func (Real) value()           {}
func (Real) Type() Type       { return TypeReal }
func (r Real) String() string { return strconv.FormatFloat(float64(r), 'g', -1, 64) }

// Fraction is a floating point leaf in the range a percentage is expressed
// in (0.25 means 25%).
type Fraction float64

func (Fraction) value()           {}
func (Fraction) Type() Type       { return TypeFraction }
func (f Fraction) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Boolean is a boolean leaf.
type Boolean bool

func (Boolean) value()           {}
func (Boolean) Type() Type       { return TypeBoolean }
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

// Timestamp is a point in time.
type Timestamp time.Time

func (Timestamp) value()     {}
func (Timestamp) Type() Type { return TypeTimestamp }

func (t Timestamp) String() string {
	return time.Time(t).Format(time.RFC3339)
}

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// State is a severity level.
type State uint32

const (
	StateUndefined State = iota
	StateUnimportant
	StateReady
	StateWarning
	StateError
	StateCritical
)

var stateNames = []string{"undefined", "unimportant", "ready", "warning", "error", "critical"}

func (State) value()     {}
func (State) Type() Type { return TypeState }

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return strconv.FormatUint(uint64(s), 10)
}

// ParseState maps a level name to a State.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return StateUndefined, false
}

// NewTimestamp creates a Timestamp value.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t)
}
