package krema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// paramSpec describes one declared parameter of a handler: its field name in
// the argument object, its Go type, and whether it binds to the raw request
// or to the whole argument tree instead of a named field.
type paramSpec struct {
	name        string
	typ         reflect.Type
	rawRequest  bool
	wholeObject bool
}

var requestType = reflect.TypeOf((*Request)(nil))

// structuredType reports whether a parameter type takes whole-object binding
// when it is a handler's only parameter: the argument tree deserializes into
// it directly instead of being treated as a bag of named fields.
func structuredType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return true
	default:
		return false
	}
}

// resolveArguments converts a request's JSON argument tree into one value per
// declared parameter. This is the single conversion point for every handler;
// the static path reaches the same rules through Args.
func resolveArguments(params []paramSpec, req *Request) ([]reflect.Value, error) {
	args, err := newArgs(req)
	if err != nil {
		return nil, err
	}

	out := make([]reflect.Value, len(params))
	for i, p := range params {
		switch {
		case p.rawRequest:
			out[i] = reflect.ValueOf(req)
		case p.wholeObject:
			v, err := coerceJSON(req.Args, p.typ)
			if err != nil {
				return nil, errCoercion(err, "argument %q", p.name)
			}
			out[i] = v
		default:
			raw, err := args.field(p.name)
			if err != nil {
				return nil, err
			}
			v, err := coerceJSON(raw, p.typ)
			if err != nil {
				return nil, errCoercion(err, "argument %q", p.name)
			}
			out[i] = v
		}
	}
	return out, nil
}

// coerceJSON converts one JSON subtree into a value of type t.
//
// Absent and null both resolve to the zero value; an optional argument the
// caller left out is a normal case, not a malformed request. Present values
// are strict about their JSON kind: strings only from JSON strings, booleans
// only from JSON booleans, numerics only from JSON numbers. Every other type
// deserializes structurally.
func coerceJSON(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	if isJSONNull(raw) {
		return reflect.Zero(t), nil
	}

	switch t.Kind() {
	case reflect.String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s).Convert(t), nil

	case reflect.Bool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return coerceNumber(raw, t)

	default:
		v := reflect.New(t)
		if err := json.Unmarshal(raw, v.Interface()); err != nil {
			return reflect.Value{}, err
		}
		return v.Elem(), nil
	}
}

// coerceNumber converts a JSON number node to the declared numeric width. A
// non-number JSON kind is rejected outright. Integer targets accept fractional
// literals only when the value is integral, and overflow is an error rather
// than a silent wrap.
func coerceNumber(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	// json.Number also decodes from a quoted string whose content happens
	// to be numeric; only an actual number token is acceptable here.
	if !jsonNumberToken(raw) {
		return reflect.Value{}, fmt.Errorf("value %s is not a JSON number", raw)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return reflect.Value{}, err
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(n.String(), t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetFloat(f)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			// Fractional literal; accept it only when integral.
			if i, err = integralValue(n); err != nil {
				return reflect.Value{}, err
			}
		}
		if v.OverflowInt(i) {
			return reflect.Value{}, &strconv.NumError{Func: "coerce", Num: n.String(), Err: strconv.ErrRange}
		}
		v.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			i, ierr := integralValue(n)
			if ierr != nil || i < 0 {
				return reflect.Value{}, err
			}
			u = uint64(i)
		}
		if v.OverflowUint(u) {
			return reflect.Value{}, &strconv.NumError{Func: "coerce", Num: n.String(), Err: strconv.ErrRange}
		}
		v.SetUint(u)
	}
	return v, nil
}

func integralValue(n json.Number) (int64, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
		return 0, &strconv.NumError{Func: "coerce", Num: n.String(), Err: strconv.ErrSyntax}
	}
	return int64(f), nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// jsonNumberToken reports whether raw's first token is a number node.
func jsonNumberToken(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b == '-' || (b >= '0' && b <= '9')
	}
	return false
}

// Args is the argument accessor handed to generated static bindings. All of
// its lookups go through the same coercion rules as reflective dispatch, so
// the two paths cannot drift apart.
type Args struct {
	req      *Request
	fields   map[string]json.RawMessage
	fieldErr error
}

func newArgs(req *Request) (*Args, error) {
	a := &Args{req: req, fields: map[string]json.RawMessage{}}
	if isJSONNull(req.Args) {
		return a, nil
	}
	if err := json.Unmarshal(req.Args, &a.fields); err != nil {
		// Keep the Args usable for whole-object binding; named lookup
		// reports the shape problem instead.
		a.fields = nil
		a.fieldErr = errCoercion(err, "arguments are not a JSON object")
	}
	return a, nil
}

// Request returns the full call envelope.
func (a *Args) Request() *Request { return a.req }

func (a *Args) field(name string) (json.RawMessage, error) {
	if a.fieldErr != nil {
		return nil, a.fieldErr
	}
	return a.fields[name], nil
}

// Float64 returns the named argument as a float64; absent or null is 0.
func (a *Args) Float64(name string) (float64, error) {
	v, err := a.coerce(name, reflect.TypeOf(float64(0)))
	if err != nil {
		return 0, err
	}
	return v.Float(), nil
}

// Int returns the named argument as an int; absent or null is 0.
func (a *Args) Int(name string) (int, error) {
	v, err := a.coerce(name, reflect.TypeOf(int(0)))
	if err != nil {
		return 0, err
	}
	return int(v.Int()), nil
}

// Bool returns the named argument as a bool; absent or null is false.
func (a *Args) Bool(name string) (bool, error) {
	v, err := a.coerce(name, reflect.TypeOf(false))
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

// String returns the named argument as a string; absent or null is "".
func (a *Args) String(name string) (string, error) {
	v, err := a.coerce(name, reflect.TypeOf(""))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Bind deserializes the named argument into out, which must be a pointer.
// Absent or null leaves out untouched.
func (a *Args) Bind(name string, out interface{}) error {
	raw, err := a.field(name)
	if err != nil {
		return err
	}
	if isJSONNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errCoercion(err, "argument %q", name)
	}
	return nil
}

// BindAll deserializes the entire argument tree into out (whole-object
// binding). Absent or null leaves out untouched.
func (a *Args) BindAll(out interface{}) error {
	if isJSONNull(a.req.Args) {
		return nil
	}
	if err := json.Unmarshal(a.req.Args, out); err != nil {
		return errCoercion(err, "arguments")
	}
	return nil
}

func (a *Args) coerce(name string, t reflect.Type) (reflect.Value, error) {
	raw, err := a.field(name)
	if err != nil {
		return reflect.Value{}, err
	}
	v, err := coerceJSON(raw, t)
	if err != nil {
		return reflect.Value{}, errCoercion(err, "argument %q", name)
	}
	return v, nil
}
