// Package value defines the runtime value model for crucible variables.
//
// Values form a closed, tagged set: text, 64-bit integer, 64-bit float,
// boolean, ordered list, and keyed dictionary. Every consumption site
// (evaluator, type checker, display, journal) dispatches with an
// exhaustive type switch so that adding a variant is a compile-visible
// change, never a silent runtime fallthrough.
//
// Values are immutable once produced: a mutation replaces the whole
// Value on the owning variable.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface over the six runtime variants.
// Only Str, Int, Float, Bool, List, and *Dict implement it.
type Value interface {
	value() // Sealed - only the variants in this package implement it
}

// Str is a text value.
type Str string

func (Str) value() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) value() {}

// Float is a 64-bit floating point value.
type Float float64

func (Float) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// List is an ordered sequence of values.
type List []Value

func (List) value() {}

// Dict maps text keys to values. Keys are unique and insertion order is
// preserved for display and iteration, matching the environment's
// "what you typed is what you see" rendering.
type Dict struct {
	keys    []string
	entries map[string]Value
}

func (*Dict) value() {}

// NewDict creates an empty dictionary.
func NewDict() *Dict {
	return &Dict{entries: make(map[string]Value)}
}

// Set inserts or replaces a key. First insertion fixes the key's
// position in iteration order; replacing keeps the original position.
func (d *Dict) Set(key string, v Value) {
	if _, ok := d.entries[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.entries[key] = v
}

// Get returns the value for key and whether it exists.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.entries[key]
	return v, ok
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// TypeName returns the short type name used in messages and type hints.
func TypeName(v Value) string {
	switch v.(type) {
	case Str:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case *Dict:
		return "dict"
	default:
		return fmt.Sprintf("unknown(%T)", v)
	}
}

// Display renders a value the way the shell prints it: strings quoted,
// floats with trailing zeros trimmed, lists as [a, b], dicts as
// {"k": v} in insertion order.
func Display(v Value) string {
	switch val := v.(type) {
	case Str:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return formatFloat(float64(val))
	case Bool:
		return strconv.FormatBool(bool(val))
	case List:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Display(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Dict:
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q: %s", k, Display(val.entries[k]))
		}
		b.WriteByte('}')
		return b.String()
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// Text renders a value without quoting strings, for interpolation and
// raw output contexts.
func Text(v Value) string {
	if s, ok := v.(Str); ok {
		return string(s)
	}
	return Display(v)
}

// formatFloat trims trailing zeros so 2.50 prints as 2.5 and 3.0 as 3.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Equal reports deep structural equality between two values.
// Int and Float never compare equal even when numerically identical;
// the variant tag is part of the value.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Dict:
		bv, ok := b.(*Dict)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			bval, ok := bv.Get(k)
			if !ok || !Equal(av.entries[k], bval) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy. Scalar variants are returned as-is since
// they are immutable by construction; lists and dicts are copied.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case *Dict:
		out := NewDict()
		for _, k := range val.keys {
			out.Set(k, Clone(val.entries[k]))
		}
		return out
	default:
		return v
	}
}
