// Package state holds the storage contract addressed by stateful pipeline
// steps. Keys and values are boxed into a small tagged representation so a
// backend only ever deals with bytes.
package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Type tags the dynamic type boxed inside a Value.
type Type byte

const (
	TypeString Type = iota
	TypeLong
	TypeDouble
	TypeBool
	TypeBinary
	TypeObject
)

var ErrValueType = errors.New("state: unsupported value type")

// Value is a boxed state value: one of string, integer, floating-point,
// boolean, binary, or a structured object.
type Value struct {
	typ     Type
	payload []byte
}

// Box wraps a supported Go value. Structured objects are encoded as JSON.
func Box(v any) (*Value, error) {
	switch t := v.(type) {
	case *Value:
		return t, nil
	case string:
		return &Value{typ: TypeString, payload: []byte(t)}, nil
	case int:
		return boxLong(int64(t)), nil
	case int32:
		return boxLong(int64(t)), nil
	case int64:
		return boxLong(t), nil
	case float64:
		payload := make([]byte, 8)
		binary.BigEndian.PutUint64(payload, math.Float64bits(t))
		return &Value{typ: TypeDouble, payload: payload}, nil
	case bool:
		payload := []byte{0}
		if t {
			payload[0] = 1
		}
		return &Value{typ: TypeBool, payload: payload}, nil
	case []byte:
		return &Value{typ: TypeBinary, payload: append([]byte(nil), t...)}, nil
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %T: %v", ErrValueType, v, err)
		}
		return &Value{typ: TypeObject, payload: payload}, nil
	}
}

func boxLong(v int64) *Value {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(v))
	return &Value{typ: TypeLong, payload: payload}
}

// Encode renders the value as a single tag byte followed by the payload.
func (v *Value) Encode() []byte {
	out := make([]byte, 1+len(v.payload))
	out[0] = byte(v.typ)
	copy(out[1:], v.payload)
	return out
}

// Decode parses an encoded value. Truncated payloads are rejected here so
// the typed accessors can index freely.
func Decode(b []byte) (*Value, error) {
	if len(b) == 0 {
		return nil, errors.New("state: empty encoded value")
	}
	typ := Type(b[0])
	if typ > TypeObject {
		return nil, fmt.Errorf("state: invalid value tag %d", b[0])
	}
	payload := b[1:]
	switch typ {
	case TypeLong, TypeDouble:
		if len(payload) != 8 {
			return nil, fmt.Errorf("state: tag %d wants an 8-byte payload, got %d", typ, len(payload))
		}
	case TypeBool:
		if len(payload) != 1 {
			return nil, fmt.Errorf("state: tag %d wants a 1-byte payload, got %d", typ, len(payload))
		}
	}
	return &Value{typ: typ, payload: append([]byte(nil), payload...)}, nil
}

func (v *Value) Type() Type { return v.typ }

func (v *Value) String() (string, error) {
	if v.typ != TypeString {
		return "", typeError(TypeString, v.typ)
	}
	return string(v.payload), nil
}

func (v *Value) Long() (int64, error) {
	if v.typ != TypeLong {
		return 0, typeError(TypeLong, v.typ)
	}
	return int64(binary.BigEndian.Uint64(v.payload)), nil
}

func (v *Value) Double() (float64, error) {
	if v.typ != TypeDouble {
		return 0, typeError(TypeDouble, v.typ)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(v.payload)), nil
}

func (v *Value) Bool() (bool, error) {
	if v.typ != TypeBool {
		return false, typeError(TypeBool, v.typ)
	}
	return v.payload[0] != 0, nil
}

func (v *Value) Binary() ([]byte, error) {
	if v.typ != TypeBinary {
		return nil, typeError(TypeBinary, v.typ)
	}
	return v.payload, nil
}

// Object unmarshals a structured value into dst.
func (v *Value) Object(dst any) error {
	if v.typ != TypeObject {
		return typeError(TypeObject, v.typ)
	}
	return json.Unmarshal(v.payload, dst)
}

func typeError(want, got Type) error {
	return fmt.Errorf("%w: want tag %d, got %d", ErrValueType, want, got)
}
