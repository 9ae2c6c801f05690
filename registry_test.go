package krema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// Calculator is the shared fixture for dual-path tests: registered
// reflectively here, and through calculatorRegistrar for the static path.
type Calculator struct{}

func (c *Calculator) Calculate(a, b float64, operation string) (float64, error) {
	switch operation {
	case "add":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return 0, errors.New("Division by zero")
		}
		return a / b, nil
	default:
		return 0, fmt.Errorf("Unknown operation: %s", operation)
	}
}

func (c *Calculator) MethodParams() map[string][]string {
	return map[string][]string{
		"calculate": {"a", "b", "operation"},
	}
}

// calculatorRegistrar is a hand-maintained copy of what the binding
// generator emits for *Calculator.
type calculatorRegistrar struct{}

func (calculatorRegistrar) CanBind(obj interface{}) bool {
	_, ok := obj.(*Calculator)
	return ok
}

func (calculatorRegistrar) Bind(obj interface{}) map[string]StaticFunc {
	c := obj.(*Calculator)
	return map[string]StaticFunc{
		"calculate": func(args *Args) (interface{}, error) {
			a, err := args.Float64("a")
			if err != nil {
				return nil, err
			}
			b, err := args.Float64("b")
			if err != nil {
				return nil, err
			}
			operation, err := args.String("operation")
			if err != nil {
				return nil, err
			}
			return c.Calculate(a, b, operation)
		},
	}
}

func invokeJSON(t *testing.T, r *Registry, command, args string) Outcome {
	t.Helper()
	req := &Request{Command: command}
	if args != "" {
		req.Args = json.RawMessage(args)
	}
	return r.Invoke(req)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Calculator{}); err != nil {
		t.Fatalf("first registration failed: %s", err)
	}

	err := r.Register(&Calculator{})
	if err == nil {
		t.Fatal("second registration of the same command name did not fail")
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != DuplicateCommand {
		t.Errorf("error is not DuplicateCommand: %v", err)
	}

	// The failed call must leave the table untouched.
	if got := len(r.Names()); got != 1 {
		t.Errorf("table has %d entries after failed registration, want 1", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	r := NewRegistry()
	out := invokeJSON(t, r, "doesNotExist", `{}`)
	if out.OK() {
		t.Fatal("expected failure outcome")
	}
	if out.Err.Kind != UnknownCommand {
		t.Errorf("kind = %s, want unknown command", out.Err.Kind)
	}
	if want := "Unknown command: doesNotExist"; out.Err.Message != want {
		t.Errorf("message = %q, want %q", out.Err.Message, want)
	}
}

func TestNamesAndHasCommand(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Calculator{}); err != nil {
		t.Fatal(err)
	}
	if !r.HasCommand("calculate") {
		t.Error("calculate not found")
	}
	if r.HasCommand("Calculate") {
		t.Error("command names are lowerCamel; exported name should not resolve")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "calculate" {
		t.Errorf("names = %v", names)
	}
}

func TestBlacklistedMethodsNotRegistered(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Calculator{}); err != nil {
		t.Fatal(err)
	}
	if r.HasCommand("methodParams") || r.HasCommand("commandNames") {
		t.Error("metadata methods leaked into the command table")
	}
}

// The calculator examples from both registration paths, verbatim.
func TestDualPathEquivalence(t *testing.T) {
	static := NewRegistry(WithRegistrars(calculatorRegistrar{}))
	if err := static.Register(&Calculator{}); err != nil {
		t.Fatal(err)
	}
	reflective := NewRegistry()
	if err := reflective.Register(&Calculator{}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		args    string
		ok      bool
		value   float64
		message string
	}{
		{`{"a":10,"b":5,"operation":"divide"}`, true, 2, ""},
		{`{"a":10,"b":5,"operation":"add"}`, true, 15, ""},
		{`{"a":10,"b":0,"operation":"divide"}`, false, 0, "Division by zero"},
		{`{"a":10,"b":5,"operation":"bogus"}`, false, 0, "Unknown operation: bogus"},
		{`{"operation":"add"}`, true, 0, ""}, // missing numerics are zero
		{`{"a":"ten","b":5,"operation":"add"}`, false, 0, ""},
	}

	for name, r := range map[string]*Registry{"static": static, "reflective": reflective} {
		for _, c := range cases {
			out := invokeJSON(t, r, "calculate", c.args)
			if out.OK() != c.ok {
				t.Errorf("%s path, args %s: ok = %v, want %v (err: %v)", name, c.args, out.OK(), c.ok, out.Err)
				continue
			}
			if c.ok {
				if got := out.Value.(float64); got != c.value {
					t.Errorf("%s path, args %s: value = %v, want %v", name, c.args, got, c.value)
				}
			} else if c.message != "" && out.Err.Message != c.message {
				t.Errorf("%s path, args %s: message = %q, want %q", name, c.args, out.Err.Message, c.message)
			}
		}
	}
}

type notesStore struct {
	saved pageQuery
}

func (s *notesStore) Search(q pageQuery) int {
	s.saved = q
	return q.Limit
}

func (s *notesStore) Describe(req *Request) string {
	return req.Command
}

func TestWholeObjectCommand(t *testing.T) {
	s := &notesStore{}
	r := NewRegistry()
	if err := r.Register(s); err != nil {
		t.Fatal(err)
	}

	out := invokeJSON(t, r, "search", `{"offset":1,"limit":25,"filter":"x"}`)
	if !out.OK() {
		t.Fatalf("search failed: %v", out.Err)
	}
	if s.saved.Offset != 1 || s.saved.Limit != 25 || s.saved.Filter != "x" {
		t.Errorf("whole-object parameter got %+v", s.saved)
	}
	if out.Value.(int) != 25 {
		t.Errorf("value = %v", out.Value)
	}
}

func TestRawRequestCommand(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&notesStore{}); err != nil {
		t.Fatal(err)
	}
	out := invokeJSON(t, r, "describe", `{"ignored":true}`)
	if !out.OK() {
		t.Fatalf("describe failed: %v", out.Err)
	}
	if out.Value.(string) != "describe" {
		t.Errorf("raw request command saw %v", out.Value)
	}
}

type renamed struct{}

func (renamed) Ping() string { return "pong" }

func (renamed) CommandNames() map[string]string {
	return map[string]string{"Ping": "net:ping"}
}

func TestExplicitCommandName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(renamed{}); err != nil {
		t.Fatal(err)
	}
	if !r.HasCommand("net:ping") {
		t.Fatal("explicit name not registered")
	}
	if r.HasCommand("ping") {
		t.Error("default name registered alongside explicit name")
	}
	out := invokeJSON(t, r, "net:ping", "")
	if !out.OK() || out.Value.(string) != "pong" {
		t.Errorf("net:ping = %+v", out)
	}
}

type badSignature struct{}

func (badSignature) Weird() (int, string) { return 0, "" }

func TestBadReturnSignatureRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(badSignature{}); err == nil {
		t.Error("method with (int, string) returns registered without error")
	}
}

func TestSealedRegistryRejectsRegistration(t *testing.T) {
	r := NewRegistry()
	r.seal()
	if err := r.Register(&Calculator{}); err == nil {
		t.Error("registration after seal did not fail")
	}
}

func TestHandlerErrorPreserved(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Calculator{}); err != nil {
		t.Fatal(err)
	}
	out := invokeJSON(t, r, "calculate", `{"a":1,"b":0,"operation":"divide"}`)
	if out.OK() {
		t.Fatal("expected failure")
	}
	if out.Err.Kind != HandlerFailure {
		t.Errorf("kind = %s, want handler failure", out.Err.Kind)
	}
	var cause error = out.Err.Cause
	if cause == nil || cause.Error() != "Division by zero" {
		t.Errorf("cause = %v", cause)
	}
}

// Sanity check that paramSpec construction matches the method shape.
func TestReflectiveParamSpecs(t *testing.T) {
	handlers, err := reflectiveHandlers(&Calculator{})
	if err != nil {
		t.Fatal(err)
	}
	h, ok := handlers["calculate"]
	if !ok {
		t.Fatalf("handlers = %v", handlers)
	}
	want := []paramSpec{
		{name: "a", typ: reflect.TypeOf(float64(0))},
		{name: "b", typ: reflect.TypeOf(float64(0))},
		{name: "operation", typ: reflect.TypeOf("")},
	}
	if !reflect.DeepEqual(h.params, want) {
		t.Errorf("params = %+v", h.params)
	}
}
