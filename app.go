package krema

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
)

// App is the application host: it owns the transport, the command registry,
// the dispatcher, and the event emitter, and ties their lifecycles together.
//
// The expected order is New, Register (any number of times), Start, and
// eventually Shutdown. Registration after Start fails; Shutdown is
// idempotent.
type App struct {
	cfg       *Config
	log       *zap.Logger
	session   string
	transport Transport

	registry   *Registry
	registrars []Registrar
	dispatcher *Dispatcher
	emitter    *Emitter
	bridge     *semver.Constraints

	mu       sync.Mutex
	started  bool
	stopped  bool
	tickers  []chan struct{}
	shutdown sync.Once
}

// Option configures an App at construction.
type Option func(*App)

// WithLogger replaces the logger built from the config's Log section.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithCommands passes generated binding tables through to the registry.
func WithCommands(rs ...Registrar) Option {
	return func(a *App) { a.registrars = append(a.registrars, rs...) }
}

// New creates an application host over the given transport.
func New(cfg *Config, transport Transport, opts ...Option) (*App, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	constraint, err := semver.NewConstraint(cfg.Bridge.Constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge constraint %q: %w", cfg.Bridge.Constraint, err)
	}

	log, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	u, _ := uuid.NewV4()
	a := &App{
		cfg:       cfg,
		log:       log,
		transport: transport,
		bridge:    constraint,
		session:   u.String(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(zap.String("app", cfg.App), zap.String("session", a.session))

	a.registry = NewRegistry(WithRegistrars(a.registrars...), WithRegistryLogger(a.log))
	a.dispatcher = NewDispatcher(a.registry, transport, a.log, cfg.Dispatch.MaxConcurrent)
	a.emitter = NewEmitter(transport, a.log)
	return a, nil
}

// Register adds command objects. All registration must happen before Start.
func (a *App) Register(objects ...interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("cannot register commands after the application has started")
	}
	return a.registry.Register(objects...)
}

// Events returns the emitter for backend-originated notifications.
func (a *App) Events() *Emitter { return a.emitter }

// Registry exposes the command table, mostly for inspection and tests.
func (a *App) Registry() *Registry { return a.registry }

// Session is this run's identifier, minted at construction and shared with
// the frontend in the ready handshake.
func (a *App) Session() string { return a.session }

// Start seals the registry, binds the bridge channels on the transport, and
// navigates the window to the configured URL. After Start the frontend can
// invoke commands.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("application already started")
	}

	a.registry.seal()
	if err := a.dispatcher.Start(); err != nil {
		return fmt.Errorf("bind invoke channel: %w", err)
	}
	if err := a.transport.Bind(readyBinding, a.handleReady); err != nil {
		return fmt.Errorf("bind ready channel: %w", err)
	}
	if a.cfg.Window.URL != "" {
		if err := a.transport.Navigate(a.cfg.Window.URL); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
	}

	a.started = true
	a.log.Info("application started",
		zap.Strings("commands", a.registry.Names()),
		zap.String("url", a.cfg.Window.URL))
	return nil
}

// handleReady answers the bridge's one-time handshake: the bootstrap script
// announces its version, the host checks it against the configured range and
// replies with the session identity.
func (a *App) handleReady(id string, body string) {
	var hello struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal([]byte(body), &hello); err != nil {
		a.respondReady(id, false, failureBody{Message: "malformed ready handshake"})
		return
	}

	version, err := semver.NewVersion(hello.Version)
	if err != nil {
		a.respondReady(id, false, failureBody{Message: fmt.Sprintf("invalid bridge version %q", hello.Version)})
		return
	}
	if !a.bridge.Check(version) {
		a.log.Error("incompatible frontend bridge",
			zap.String("version", hello.Version),
			zap.String("constraint", a.cfg.Bridge.Constraint))
		a.respondReady(id, false, failureBody{
			Message: fmt.Sprintf("bridge version %s does not satisfy %s", hello.Version, a.cfg.Bridge.Constraint),
		})
		return
	}

	a.log.Info("frontend ready", zap.String("bridge", hello.Version))
	a.respondReady(id, true, struct {
		App     string `json:"app"`
		Session string `json:"session"`
	}{a.cfg.App, a.session})
}

func (a *App) respondReady(id string, ok bool, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := a.transport.Respond(id, ok, string(body)); err != nil {
		a.log.Warn("ready respond failed", zap.Error(err))
	}
}

// Every runs fn on its own goroutine at the given interval until Shutdown.
// It exists for background producers, heartbeats and pollers that emit
// events; fn may call Events().Emit freely. After Shutdown it does nothing.
func (a *App) Every(interval time.Duration, fn func()) {
	stop := make(chan struct{})

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.tickers = append(a.tickers, stop)
	a.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
}

// Shutdown stops background tickers, waits for in-flight commands, and
// flushes logs. Calling it again is a no-op.
func (a *App) Shutdown() {
	a.shutdown.Do(func() {
		a.mu.Lock()
		a.stopped = true
		tickers := a.tickers
		a.tickers = nil
		a.mu.Unlock()

		for _, stop := range tickers {
			close(stop)
		}
		a.dispatcher.Close()
		a.log.Info("application stopped")
		_ = a.log.Sync()
	})
}
