package krema

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestEmitDeliversScript(t *testing.T) {
	ft := newFakeTransport()
	e := NewEmitter(ft, nil)

	e.Emit("download:progress", map[string]interface{}{"percent": 42})

	if ft.evalCount() != 1 {
		t.Fatalf("eval count = %d", ft.evalCount())
	}
	script := ft.evals[0]
	if !strings.Contains(script, `"download:progress"`) || !strings.Contains(script, `{"percent":42}`) {
		t.Errorf("delivery script = %s", script)
	}
}

func TestEmitNilPayload(t *testing.T) {
	ft := newFakeTransport()
	e := NewEmitter(ft, nil)

	e.Emit("shutdown", nil)
	if !strings.Contains(ft.evals[0], ", null)") {
		t.Errorf("nil payload script = %s", ft.evals[0])
	}
}

// Emission with nobody listening (or with a dead frontend) must not panic or
// propagate anything to the caller.
func TestEmitBeforeListeners(t *testing.T) {
	ft := newFakeTransport()
	ft.evalErr = errors.New("no page loaded")
	e := NewEmitter(ft, nil)

	e.Emit("tick", 1) // must not panic
}

func TestEmitUnserializablePayloadDropped(t *testing.T) {
	ft := newFakeTransport()
	e := NewEmitter(ft, nil)

	e.Emit("bad", func() {})
	if ft.evalCount() != 0 {
		t.Error("unserializable payload still delivered")
	}
}

func TestEmitFromManyGoroutines(t *testing.T) {
	ft := newFakeTransport()
	e := NewEmitter(ft, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				e.Emit("tick", i)
			}
		}(i)
	}
	wg.Wait()

	if ft.evalCount() != 200 {
		t.Errorf("delivered %d events, want 200", ft.evalCount())
	}
}
