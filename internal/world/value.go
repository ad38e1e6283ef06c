package world

import (
	"fmt"
	"math"
)

// ValueType identifies the wire type of a single entity field.
type ValueType uint8

const (
	ValueF32 ValueType = iota + 1
	ValueVec2
	ValueU8
	ValueU32
	ValueBool
	ValueString
	ValueID
)

func (t ValueType) String() string {
	switch t {
	case ValueF32:
		return "f32"
	case ValueVec2:
		return "vec2"
	case ValueU8:
		return "u8"
	case ValueU32:
		return "u32"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueID:
		return "id"
	default:
		return fmt.Sprintf("value(%d)", uint8(t))
	}
}

// Vec2 is a 2D vector in physics units.
type Vec2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Value holds one field of an entity. Only the member matching Type is set.
type Value struct {
	Type ValueType
	F32  float32
	Vec2 Vec2
	U8   uint8
	U32  uint32
	Bool bool
	Str  string
	ID   EntityID
}

func F32Value(v float32) Value { return Value{Type: ValueF32, F32: v} }
func Vec2Value(v Vec2) Value { return Value{Type: ValueVec2, Vec2: v} }
func U8Value(v uint8) Value { return Value{Type: ValueU8, U8: v} }
func U32Value(v uint32) Value { return Value{Type: ValueU32, U32: v} }
func BoolValue(v bool) Value { return Value{Type: ValueBool, Bool: v} }
func StringValue(v string) Value { return Value{Type: ValueString, Str: v} }
func IDValue(v EntityID) Value { return Value{Type: ValueID, ID: v} }

// Equal compares two values. Floating-point members are equal when they
// differ by at most epsilon; everything else compares exactly.
func (v Value) Equal(other Value, epsilon float64) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValueF32:
		return floatEqual(v.F32, other.F32, epsilon)
	case ValueVec2:
		return floatEqual(v.Vec2.X, other.Vec2.X, epsilon) && floatEqual(v.Vec2.Y, other.Vec2.Y, epsilon)
	case ValueU8:
		return v.U8 == other.U8
	case ValueU32:
		return v.U32 == other.U32
	case ValueBool:
		return v.Bool == other.Bool
	case ValueString:
		return v.Str == other.Str
	case ValueID:
		return v.ID == other.ID
	default:
		return false
	}
}

func floatEqual(a, b float32, epsilon float64) bool {
	if math.Float32bits(a) == math.Float32bits(b) {
		return true
	}
	return math.Abs(float64(a)-float64(b)) <= epsilon
}
