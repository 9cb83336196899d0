package rowflow

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
)

type colOp int8

const (
	opField colOp = iota
	opLit
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opEq
	opNe
	opLt
	opLe
	opGt
	opGe
	opAnd
	opOr
	opApply
)

var opNames = map[colOp]string{
	opAdd: "+", opSub: "-", opMul: "*", opDiv: "/", opMod: "%",
	opEq: "==", opNe: "!=", opLt: "<", opLe: "<=", opGt: ">", opGe: ">=",
	opAnd: "&", opOr: "|",
}

// ColumnApplier transforms a single evaluated column value.
type ColumnApplier func(value any) (any, error)

// Column is a lazy expression tree over row fields. A node is either a field
// reference, a literal, a unary apply, or a binary operation whose operands
// are themselves Columns. Evaluation never mutates the row and caches
// nothing; repeated evaluation re-resolves field references.
type Column struct {
	op    colOp
	field string
	lit   any
	left  *Column
	right *Column
	fn    ColumnApplier
}

// Col references a field of the row value by name.
func Col(name string) *Column {
	return &Column{op: opField, field: name}
}

// asColumn lifts a literal operand into a Column node. Columns pass through.
func asColumn(v any) *Column {
	if c, ok := v.(*Column); ok {
		return c
	}
	return &Column{op: opLit, lit: v}
}

func (c *Column) operation(op colOp, other any) *Column {
	return &Column{op: op, left: c, right: asColumn(other)}
}

func (c *Column) Add(other any) *Column { return c.operation(opAdd, other) }
func (c *Column) Sub(other any) *Column { return c.operation(opSub, other) }
func (c *Column) Mul(other any) *Column { return c.operation(opMul, other) }
func (c *Column) Div(other any) *Column { return c.operation(opDiv, other) }
func (c *Column) Mod(other any) *Column { return c.operation(opMod, other) }
func (c *Column) Eq(other any) *Column  { return c.operation(opEq, other) }
func (c *Column) Ne(other any) *Column  { return c.operation(opNe, other) }
func (c *Column) Lt(other any) *Column  { return c.operation(opLt, other) }
func (c *Column) Le(other any) *Column  { return c.operation(opLe, other) }
func (c *Column) Gt(other any) *Column  { return c.operation(opGt, other) }
func (c *Column) Ge(other any) *Column  { return c.operation(opGe, other) }
func (c *Column) And(other any) *Column { return c.operation(opAnd, other) }
func (c *Column) Or(other any) *Column  { return c.operation(opOr, other) }

// Apply wraps the column with a unary transform applied to its evaluated
// value.
func (c *Column) Apply(fn ColumnApplier) *Column {
	return &Column{op: opApply, left: c, fn: fn}
}

// Eval resolves the expression tree against a concrete row.
func (c *Column) Eval(row *Row) (any, error) {
	switch c.op {
	case opField:
		v, ok := row.Get(c.field)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, c.field)
		}
		return v, nil
	case opLit:
		return c.lit, nil
	case opApply:
		v, err := c.left.Eval(row)
		if err != nil {
			return nil, err
		}
		return c.fn(v)
	case opAnd:
		l, err := c.left.Eval(row)
		if err != nil {
			return nil, err
		}
		if !Truthy(l) {
			return l, nil
		}
		return c.right.Eval(row)
	case opOr:
		l, err := c.left.Eval(row)
		if err != nil {
			return nil, err
		}
		if Truthy(l) {
			return l, nil
		}
		return c.right.Eval(row)
	default:
		l, err := c.left.Eval(row)
		if err != nil {
			return nil, err
		}
		r, err := c.right.Eval(row)
		if err != nil {
			return nil, err
		}
		return applyOp(c.op, l, r)
	}
}

func applyOp(op colOp, a, b any) (any, error) {
	switch op {
	case opAdd:
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
		return arith(op, a, b)
	case opSub, opMul, opDiv, opMod:
		return arith(op, a, b)
	case opEq:
		return valuesEqual(a, b), nil
	case opNe:
		return !valuesEqual(a, b), nil
	case opLt, opLe, opGt, opGe:
		return order(op, a, b)
	}
	return nil, fmt.Errorf("%w: unknown operation", ErrTypeMismatch)
}

// arith applies an arithmetic operator. Integer operands stay integral
// except for division, which always promotes to float64.
func arith(op colOp, a, b any) (any, error) {
	an, ok := asNumber(a)
	if !ok {
		return nil, opTypeError(op, a, b)
	}
	bn, ok := asNumber(b)
	if !ok {
		return nil, opTypeError(op, a, b)
	}

	if an.isInt && bn.isInt {
		switch op {
		case opAdd:
			return an.i + bn.i, nil
		case opSub:
			return an.i - bn.i, nil
		case opMul:
			return an.i * bn.i, nil
		case opMod:
			if bn.i == 0 {
				return nil, ErrDivisionByZero
			}
			return an.i % bn.i, nil
		}
	}

	switch op {
	case opAdd:
		return an.f + bn.f, nil
	case opSub:
		return an.f - bn.f, nil
	case opMul:
		return an.f * bn.f, nil
	case opMod:
		if bn.f == 0 {
			return nil, ErrDivisionByZero
		}
		return math.Mod(an.f, bn.f), nil
	case opDiv:
		if bn.f == 0 {
			return nil, ErrDivisionByZero
		}
		return an.f / bn.f, nil
	}
	return nil, opTypeError(op, a, b)
}

func order(op colOp, a, b any) (any, error) {
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return nil, opTypeError(op, a, b)
		}
		switch op {
		case opLt:
			return as < bs, nil
		case opLe:
			return as <= bs, nil
		case opGt:
			return as > bs, nil
		case opGe:
			return as >= bs, nil
		}
	}

	an, ok := asNumber(a)
	if !ok {
		return nil, opTypeError(op, a, b)
	}
	bn, ok := asNumber(b)
	if !ok {
		return nil, opTypeError(op, a, b)
	}

	// Integral pairs compare exactly; float64 images lose precision past
	// 2^53.
	if an.isInt && bn.isInt {
		switch op {
		case opLt:
			return an.i < bn.i, nil
		case opLe:
			return an.i <= bn.i, nil
		case opGt:
			return an.i > bn.i, nil
		case opGe:
			return an.i >= bn.i, nil
		}
	}

	switch op {
	case opLt:
		return an.f < bn.f, nil
	case opLe:
		return an.f <= bn.f, nil
	case opGt:
		return an.f > bn.f, nil
	case opGe:
		return an.f >= bn.f, nil
	}
	return nil, opTypeError(op, a, b)
}

func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			if an.isInt && bn.isInt {
				return an.i == bn.i
			}
			return an.f == bn.f
		}
		return false
	}
	if ab, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Equal(ab, bb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

type number struct {
	f     float64
	i     int64
	isInt bool
}

func asNumber(v any) (number, bool) {
	switch t := v.(type) {
	case int:
		return number{f: float64(t), i: int64(t), isInt: true}, true
	case int32:
		return number{f: float64(t), i: int64(t), isInt: true}, true
	case int64:
		return number{f: float64(t), i: t, isInt: true}, true
	case float32:
		return number{f: float64(t)}, true
	case float64:
		return number{f: t}, true
	}
	return number{}, false
}

// Truthy reports whether a dynamic row value is considered true in a filter
// context: nil, false, numeric zero, and empty strings/bytes/containers are
// false, everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []byte:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if n, ok := asNumber(v); ok {
		return n.f != 0
	}
	return true
}

func opTypeError(op colOp, a, b any) error {
	return fmt.Errorf("%w: unsupported operand types for %s: %T and %T", ErrTypeMismatch, opNames[op], a, b)
}
