package types

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValueKind discriminates the scalar kinds an attribute can hold
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
)

// Value is a typed scalar for resource attributes and finding evidence.
// One bag type instead of one schema per resource family.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// String creates a string value
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number creates a numeric value
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Boolean creates a boolean value
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// AsNumber returns the numeric value, false if the kind differs
func (v Value) AsNumber() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// AsString returns the string value, false if the kind differs
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// AsBool returns the boolean value, false if the kind differs
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

// Equal compares two values, kind first
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	}
	return false
}

// String implements fmt.Stringer
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// MarshalJSON emits the naked scalar so evidence stays readable
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	}
	return nil, fmt.Errorf("marshal value: unknown kind %q", v.Kind)
}

// UnmarshalJSON detects the scalar kind
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return v.fromAny(raw)
}

// UnmarshalYAML lets rule files write predicate values as plain scalars
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return v.fromAny(raw)
}

func (v *Value) fromAny(raw any) error {
	switch t := raw.(type) {
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case int:
		*v = Number(float64(t))
	case int64:
		*v = Number(float64(t))
	case bool:
		*v = Boolean(t)
	default:
		return fmt.Errorf("unsupported value type %T", raw)
	}
	return nil
}
