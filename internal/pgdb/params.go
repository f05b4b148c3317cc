package pgdb

import (
	"fmt"
	"math"
)

// QueryParamKind discriminates the closed set of query parameter shapes
// the external surface accepts. Replacing an in-band untyped parameter
// array with this tagged union keeps the boundary between "whatever the
// agent sent us" and "what the driver receives" explicit, per the
// specification's design notes.
type QueryParamKind int

const (
	ParamString QueryParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamNull
)

// QueryParam is one bound query parameter.
type QueryParam struct {
	Kind  QueryParamKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func StringParam(s string) QueryParam { return QueryParam{Kind: ParamString, Str: s} }
func IntParam(i int64) QueryParam     { return QueryParam{Kind: ParamInt, Int: i} }
func FloatParam(f float64) QueryParam { return QueryParam{Kind: ParamFloat, Float: f} }
func BoolParam(b bool) QueryParam     { return QueryParam{Kind: ParamBool, Bool: b} }
func NullParam() QueryParam           { return QueryParam{Kind: ParamNull} }

// ParamFromAny converts a decoded JSON value (string, bool, float64,
// int, int64, or nil) into a QueryParam, rejecting anything else —
// nested objects and arrays have no SQL parameter representation.
func ParamFromAny(v any) (QueryParam, error) {
	switch val := v.(type) {
	case nil:
		return NullParam(), nil
	case string:
		return StringParam(val), nil
	case bool:
		return BoolParam(val), nil
	case int:
		return IntParam(int64(val)), nil
	case int64:
		return IntParam(val), nil
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return IntParam(int64(val)), nil
		}
		return FloatParam(val), nil
	default:
		return QueryParam{}, fmt.Errorf("unsupported query parameter type %T", v)
	}
}

// ToArgs converts params into the []any shape the pgx driver expects,
// in positional order.
func ToArgs(params []QueryParam) []any {
	args := make([]any, len(params))
	for i, p := range params {
		switch p.Kind {
		case ParamString:
			args[i] = p.Str
		case ParamInt:
			args[i] = p.Int
		case ParamFloat:
			args[i] = p.Float
		case ParamBool:
			args[i] = p.Bool
		case ParamNull:
			args[i] = nil
		}
	}
	return args
}
