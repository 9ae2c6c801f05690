package krema

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Emitter pushes backend-originated events to the frontend listener
// registry. Emission is fire-and-forget: it never blocks on frontend
// processing and is safe from any goroutine, including timers and background
// workers.
//
// Events emitted sequentially from one goroutine arrive in order; no
// ordering is promised across goroutines.
type Emitter struct {
	transport Transport
	log       *zap.Logger
}

// NewEmitter creates an emitter over the given transport.
func NewEmitter(tr Transport, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{transport: tr, log: log.Named("events")}
}

// Emit serializes payload and delivers it to every frontend listener
// registered for name. Emitting before any listener exists is fine; the
// event is simply not observed. Failures are logged and dropped.
func (e *Emitter) Emit(name string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn("event payload serialization failed",
			zap.String("event", name), zap.Error(err))
		return
	}
	if err := e.transport.Eval(deliveryScript(name, string(body))); err != nil {
		e.log.Warn("event delivery failed",
			zap.String("event", name), zap.Error(err))
	}
}
