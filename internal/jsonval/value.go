// Package jsonval implements the tagged JSON-value variant used for
// parameter values and comparator operands: parameter values and
// in/not_in expectations can be numbers, booleans, strings, or arrays,
// and string-form projection happens inside the comparator rather than
// at parse time so numeric comparisons stay precise.
package jsonval

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindMap
)

// Value is a tagged variant over the JSON scalar/composite types that
// can appear as an event parameter, a condition's expected value, or a
// count value.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	m    map[string]Value
}

func Null() Value                  { return Value{kind: KindNull} }
func String(s string) Value        { return Value{kind: KindString, str: s} }
func Number(n float64) Value       { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Array(vs []Value) Value       { return Value{kind: KindArray, arr: vs} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// FromAny converts a decoded encoding/json value (or a plain Go string,
// float64, bool, []interface{}, map[string]interface{}) into a Value.
func FromAny(a interface{}) Value {
	switch t := a.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		return Bool(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case []interface{}:
		out := make([]Value, 0, len(t))
		for _, e := range t {
			out = append(out, FromAny(e))
		}
		return Array(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return Map(out)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindArray:
		return json.Marshal(v.arr)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

// AsString projects the value to its string form. This is where
// numeric-vs-lexicographic decisions in the comparator get their input:
// the projection is lossless for strings/bools/numbers and joins arrays
// with commas so "in"/"not_in" can treat a CSV string and a JSON array
// the same way.
func (v Value) AsString() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.AsString()
		}
		return strings.Join(parts, ",")
	case KindMap:
		b, _ := json.Marshal(v.m)
		return string(b)
	default:
		return ""
	}
}

// AsNumber attempts a finite numeric interpretation of the value.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsStringSlice expands the value into individual elements for
// membership tests: an array yields its elements' string forms; any
// other kind is split on commas with per-element whitespace trimming.
func (v Value) AsStringSlice() []string {
	if v.kind == KindArray {
		out := make([]string, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.AsString()
		}
		return out
	}
	parts := strings.Split(v.AsString(), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
