package krema

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher is the protocol glue between the transport's raw
// (correlationID, requestJSON) deliveries and the registry. It decodes the
// envelope, invokes, and settles the frontend's promise with the outcome.
//
// Every delivered correlation id receives exactly one response. A malformed
// envelope, a serialization failure, or a panicking handler all settle the
// call as a failure; nothing escaping a handler can take the process down.
type Dispatcher struct {
	registry  *Registry
	transport Transport
	log       *zap.Logger

	// sem bounds concurrent handler execution when non-nil. The default
	// is one goroutine per call with no bound, so a slow command only
	// ever delays its own response.
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewDispatcher wires a registry to a transport. maxConcurrent bounds the
// number of commands executing at once; 0 means unbounded.
func NewDispatcher(reg *Registry, tr Transport, log *zap.Logger, maxConcurrent int) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		registry:  reg,
		transport: tr,
		log:       log.Named("dispatch"),
	}
	if maxConcurrent > 0 {
		d.sem = make(chan struct{}, maxConcurrent)
	}
	return d
}

// Start binds the invoke channel on the transport. After Start the frontend
// can call; registration must already be finished.
func (d *Dispatcher) Start() error {
	return d.transport.Bind(invokeBinding, d.dispatch)
}

// Close waits for all in-flight commands to settle. Safe to call more than
// once.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// dispatch runs on the transport's delivery callback; it hands the call to
// its own goroutine immediately so the engine is never blocked.
func (d *Dispatcher) dispatch(id string, requestJSON string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.sem != nil {
			d.sem <- struct{}{}
			defer func() { <-d.sem }()
		}
		d.handle(id, requestJSON)
	}()
}

func (d *Dispatcher) handle(id string, requestJSON string) {
	outcome := d.execute(id, requestJSON)

	if outcome.OK() {
		body, err := json.Marshal(outcome.Value)
		if err != nil {
			// The handler produced something JSON can't represent.
			// The call still gets its one response, as a failure.
			d.log.Error("result serialization failed",
				zap.String("id", id), zap.Error(err))
			outcome = failure(errProtocol(err, "result serialization failed"))
		} else {
			d.respond(id, true, string(body))
			return
		}
	}

	body, err := json.Marshal(failureBody{Message: outcome.Err.Message})
	if err != nil {
		body = []byte(`{"message":"internal error"}`)
	}
	d.respond(id, false, string(body))
}

// execute produces the invocation outcome and absorbs anything that goes
// wrong along the way, including handler panics.
func (d *Dispatcher) execute(id string, requestJSON string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic",
				zap.String("id", id),
				zap.Any("panic", r),
				zap.Stack("stack"))
			outcome = failure(&Error{
				Kind:    HandlerFailure,
				Message: fmt.Sprintf("command panicked: %v", r),
			})
		}
	}()

	var req Request
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return failure(errProtocol(err, "malformed request envelope"))
	}
	if req.Command == "" {
		return failure(errProtocol(nil, "request envelope has no command"))
	}

	d.log.Debug("invoke", zap.String("id", id), zap.String("command", req.Command))
	return d.registry.Invoke(&req)
}

func (d *Dispatcher) respond(id string, ok bool, body string) {
	if err := d.transport.Respond(id, ok, body); err != nil {
		d.log.Warn("respond failed", zap.String("id", id), zap.Error(err))
	}
}
