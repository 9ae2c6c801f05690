package krema

import (
	"fmt"
	"reflect"
	"strings"
)

// Handler executes one command. Both variants share the contract: resolve the
// request's arguments, run, and return either a serializable value or an
// error that becomes the failure message.
type Handler interface {
	Invoke(req *Request) (interface{}, error)
}

// StaticFunc is the closure shape emitted by the binding generator: it reads
// the argument tree through Args with no reflection at call time.
type StaticFunc func(args *Args) (interface{}, error)

// StaticHandler wraps one generated closure.
type StaticHandler struct {
	fn StaticFunc
}

// NewStaticHandler wraps a generated (or hand-written) closure as a Handler.
func NewStaticHandler(fn StaticFunc) *StaticHandler {
	return &StaticHandler{fn: fn}
}

func (h *StaticHandler) Invoke(req *Request) (interface{}, error) {
	args, err := newArgs(req)
	if err != nil {
		return nil, err
	}
	return h.fn(args)
}

// Registrar is the registration table the binding generator emits for one
// command-bearing type. Registrars are passed to the registry explicitly at
// construction; there is no ambient discovery mechanism.
type Registrar interface {
	// CanBind reports whether this registrar was generated for obj's
	// concrete type.
	CanBind(obj interface{}) bool
	// Bind returns one generated closure per command name, bound to obj.
	Bind(obj interface{}) map[string]StaticFunc
}

// CommandNamer lets a command object declare explicit command names, keyed by
// Go method name ("Calculate" -> "calc:run"). Methods not listed keep the
// default name: the method name with a leading lowercase letter.
type CommandNamer interface {
	CommandNames() map[string]string
}

// ParamNamer names the parameters of multi-parameter methods in declaration
// order, keyed by command name. Reflection cannot recover Go parameter names,
// so without this a multi-parameter method's fields are arg0..argN. Methods
// taking a single struct or map parameter never need it; they bind the whole
// argument object.
type ParamNamer interface {
	MethodParams() map[string][]string
}

// Methods from the optional interfaces above are metadata, not commands.
var methodBlacklist = []string{
	"CommandNames",
	"MethodParams",
}

// ReflectiveHandler dispatches to a method discovered by reflection: the
// bound receiver, the method value, and the ordered parameter descriptors
// resolved against each request.
type ReflectiveHandler struct {
	receiver reflect.Value
	method   reflect.Value
	params   []paramSpec
}

func (h *ReflectiveHandler) Invoke(req *Request) (interface{}, error) {
	args, err := resolveArguments(h.params, req)
	if err != nil {
		return nil, err
	}

	results := h.method.Call(args)
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if isErrorType(h.method.Type().Out(0)) {
			if e, _ := results[0].Interface().(error); e != nil {
				return nil, e
			}
			return nil, nil
		}
		return results[0].Interface(), nil
	default: // (value, error), enforced at registration
		if e, _ := results[1].Interface().(error); e != nil {
			return nil, e
		}
		return results[0].Interface(), nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool { return t.Implements(errorType) }

// commandName converts a Go method name to its default command name.
func commandName(method string) string {
	if method == "" {
		return method
	}
	return strings.ToLower(method[:1]) + method[1:]
}

func methodIsBlacklisted(name string) bool {
	for _, bad := range methodBlacklist {
		if name == bad {
			return true
		}
	}
	return false
}

// reflectiveHandlers introspects obj's exported methods and builds one
// handler per eligible method, keyed by command name.
func reflectiveHandlers(obj interface{}) (map[string]*ReflectiveHandler, error) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() {
		return nil, fmt.Errorf("cannot register nil command object")
	}
	t := v.Type()

	var names map[string]string
	if cn, ok := obj.(CommandNamer); ok {
		names = cn.CommandNames()
	}
	var paramNames map[string][]string
	if pn, ok := obj.(ParamNamer); ok {
		paramNames = pn.MethodParams()
	}

	handlers := make(map[string]*ReflectiveHandler)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.PkgPath != "" || methodIsBlacklisted(m.Name) {
			continue
		}

		name := commandName(m.Name)
		if explicit, ok := names[m.Name]; ok {
			name = explicit
		}

		h, err := buildReflectiveHandler(v, m, paramNames[name])
		if err != nil {
			return nil, fmt.Errorf("method %s.%s: %w", t.String(), m.Name, err)
		}
		handlers[name] = h
	}
	return handlers, nil
}

func buildReflectiveHandler(receiver reflect.Value, m reflect.Method, declaredNames []string) (*ReflectiveHandler, error) {
	mt := m.Type

	if mt.NumOut() > 2 {
		return nil, fmt.Errorf("too many return values (%d); want value, error, or both", mt.NumOut())
	}
	if mt.NumOut() == 2 && !isErrorType(mt.Out(1)) {
		return nil, fmt.Errorf("second return value must be error, not %s", mt.Out(1))
	}

	// Skip the receiver at index 0.
	numParams := mt.NumIn() - 1
	if len(declaredNames) > 0 && len(declaredNames) != numParams {
		return nil, fmt.Errorf("MethodParams names %d parameters, method has %d", len(declaredNames), numParams)
	}

	params := make([]paramSpec, numParams)
	for p := 0; p < numParams; p++ {
		pt := mt.In(p + 1)
		spec := paramSpec{typ: pt, name: fmt.Sprintf("arg%d", p)}
		if len(declaredNames) > 0 {
			spec.name = declaredNames[p]
		}
		if pt == requestType {
			spec.rawRequest = true
		}
		params[p] = spec
	}

	// A lone structured parameter consumes the entire argument object,
	// even when MethodParams gave it a name.
	if numParams == 1 && !params[0].rawRequest && structuredType(params[0].typ) {
		params[0].wholeObject = true
	}

	return &ReflectiveHandler{
		receiver: receiver,
		method:   receiver.Method(m.Index),
		params:   params,
	}, nil
}
