package value

import (
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Object is an insertion-ordered associative container.
//
// An Object can also be switched wholesale into a tabular shape with
// SetReport; it then has no keys until something is stored in it again.
// The zero value is not usable, create objects with NewObject or ObjectOf.
type Object struct {
	keys   []string
	fields map[string]Value
	report *Report
}

// Pair is a key-value pair for ObjectOf.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand for Pair.
// Example: ObjectOf(P("url", String("http://localhost")), P("retries", Signed(3)))
func P(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// ObjectOf creates an object from pairs, keeping their order.
func ObjectOf(pairs ...Pair) *Object {
	obj := NewObject()
	for _, p := range pairs {
		obj.Set(p.Key, p.Value)
	}
	return obj
}

func (*Object) value() {}

// Type reports TypeReport when the object was switched into a report shape.
func (o *Object) Type() Type {
	if o.report != nil {
		return TypeReport
	}
	return TypeObject
}

// String returns the JSON form of the object.
func (o *Object) String() string {
	b, err := o.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// Lookup implements Source. Safe on a nil object.
func (o *Object) Lookup(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[norm.NFC.String(key)]
	return v, ok
}

// Get returns the value stored under key, or Null when missing.
func (o *Object) Get(key string) Value {
	if v, ok := o.Lookup(key); ok {
		return v
	}
	return Null{}
}

// Set stores v under key, keeping the original position of an existing key.
// Storing into a report-shaped object turns it back into a plain object.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	key = norm.NFC.String(key)
	o.report = nil
	if _, exists := o.fields[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	key = norm.NFC.String(key)
	if _, ok := o.fields[key]; !ok {
		return false
	}
	delete(o.fields, key)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == key })
	return true
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Merge copies every key of src into o, overwriting existing keys.
func (o *Object) Merge(src *Object) {
	if src == nil {
		return
	}
	for _, k := range src.keys {
		o.Set(k, src.fields[k])
	}
}

// Clear removes every key and any report shape.
func (o *Object) Clear() {
	o.keys = nil
	o.fields = make(map[string]Value)
	o.report = nil
}

// SetReport switches the object into a report shape, dropping its keys.
func (o *Object) SetReport(r *Report) {
	o.Clear()
	o.report = r
}

// Report returns the report when the object is report shaped.
func (o *Object) Report() (*Report, bool) {
	if o == nil || o.report == nil {
		return nil, false
	}
	return o.report, true
}

// Clone returns a deep copy. Nested objects and reports are copied too.
func (o *Object) Clone() *Object {
	if o == nil {
		return NewObject()
	}
	c := &Object{
		keys:   slices.Clone(o.keys),
		fields: make(map[string]Value, len(o.fields)),
	}
	for k, v := range o.fields {
		c.fields[k] = cloneValue(v)
	}
	if o.report != nil {
		c.report = o.report.Clone()
	}
	return c
}

// Replace makes o an exact copy of src.
func (o *Object) Replace(src *Object) {
	c := src.Clone()
	o.keys = c.keys
	o.fields = c.fields
	o.report = c.report
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case *Report:
		return val.Clone()
	default:
		return v
	}
}
