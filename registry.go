package krema

import (
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// Descriptor binds a command name to its handler. Descriptors are created
// during registration and never change afterwards.
type Descriptor struct {
	Name    string
	Handler Handler
}

// Registry owns the command table. All registration happens before the
// application starts accepting calls; after the registry is sealed the table
// is read-only, which is why Invoke takes no lock.
type Registry struct {
	log        *zap.Logger
	registrars []Registrar
	commands   map[string]*Descriptor
	sealed     atomic.Bool
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithRegistrars supplies the generated binding tables. An object whose type
// is covered by a registrar is bound through the static path; everything else
// falls back to reflection.
func WithRegistrars(rs ...Registrar) RegistryOption {
	return func(r *Registry) { r.registrars = append(r.registrars, rs...) }
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(log *zap.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// NewRegistry creates an empty command registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:      zap.NewNop(),
		commands: make(map[string]*Descriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("registry")
	return r
}

// Register scans each object for command procedures and adds one descriptor
// per procedure. A duplicate name fails the whole call and leaves the table
// untouched; that is a wiring defect to fix before shipping, not a runtime
// condition.
func (r *Registry) Register(objects ...interface{}) error {
	if r.sealed.Load() {
		return fmt.Errorf("registry is sealed; commands must be registered before the application starts")
	}

	// Stage everything first so a duplicate has no partial effect.
	pending := make(map[string]*Descriptor)
	for _, obj := range objects {
		handlers, static, err := r.handlersFor(obj)
		if err != nil {
			return err
		}
		for name, h := range handlers {
			if _, exists := r.commands[name]; exists {
				return errDuplicateCommand(name)
			}
			if _, exists := pending[name]; exists {
				return errDuplicateCommand(name)
			}
			pending[name] = &Descriptor{Name: name, Handler: h}
			r.log.Debug("bound command",
				zap.String("command", name),
				zap.Bool("static", static))
		}
	}

	for name, d := range pending {
		r.commands[name] = d
	}
	r.log.Info("registered commands", zap.Int("count", len(pending)))
	return nil
}

func (r *Registry) handlersFor(obj interface{}) (map[string]Handler, bool, error) {
	for _, reg := range r.registrars {
		if !reg.CanBind(obj) {
			continue
		}
		handlers := make(map[string]Handler)
		for name, fn := range reg.Bind(obj) {
			handlers[name] = NewStaticHandler(fn)
		}
		return handlers, true, nil
	}

	reflected, err := reflectiveHandlers(obj)
	if err != nil {
		return nil, false, err
	}
	handlers := make(map[string]Handler, len(reflected))
	for name, h := range reflected {
		handlers[name] = h
	}
	return handlers, false, nil
}

// Invoke resolves the request's command and runs it. Every failure mode comes
// back as a failure outcome; Invoke never panics for a bad request.
func (r *Registry) Invoke(req *Request) Outcome {
	d, ok := r.commands[req.Command]
	if !ok {
		r.log.Warn("unknown command", zap.String("command", req.Command))
		return failure(errUnknownCommand(req.Command))
	}

	value, err := d.Handler.Invoke(req)
	if err != nil {
		e := asFailure(err)
		r.log.Debug("command failed",
			zap.String("command", req.Command),
			zap.String("kind", e.Kind.String()),
			zap.String("message", e.Message))
		return failure(e)
	}
	return success(value)
}

// HasCommand reports whether name is in the table.
func (r *Registry) HasCommand(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// seal marks the end of registration. Called once when the application
// starts; the table is immutable afterwards.
func (r *Registry) seal() {
	r.sealed.Store(true)
}
