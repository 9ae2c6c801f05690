package krema

import "encoding/json"

// BoundFunc receives one frontend call delivered through the transport: an
// opaque correlation id and the raw request JSON.
type BoundFunc func(correlationID string, requestJSON string)

// Transport is the opaque channel to the embedded webview. The per-platform
// engine (window, script context, native bindings) lives behind this
// interface; the runtime never touches it directly.
//
// Implementations must allow Eval and Respond from any goroutine, and must
// deliver Bind callbacks without blocking the engine's render loop.
type Transport interface {
	// Bind exposes a host function under name. The frontend bridge calls
	// it with (correlationID, requestJSON); the host settles the call
	// later with Respond. Bind must happen before the page runs.
	Bind(name string, fn BoundFunc) error
	// Respond settles the frontend's pending promise for a correlation
	// id: resolve on ok, reject otherwise. resultJSON is the payload.
	Respond(correlationID string, ok bool, resultJSON string) error
	// Eval runs a script in the frontend context.
	Eval(script string) error
	// Navigate loads a URL in the webview.
	Navigate(url string) error
}

// Bound host function names. These are the only two names the runtime asks
// the transport to expose.
const (
	invokeBinding = "__krema_invoke"
	readyBinding  = "__krema_ready"
)

// bridgeVersion is the protocol version the bootstrap script announces in
// the ready handshake. The host checks it against the configured constraint.
const bridgeVersion = "2.0.0"

// BootstrapScript installs the frontend side of the bridge. Transport
// implementations inject it into every page before any frontend code runs.
//
// It provides the wire contract the frontend targets:
//
//	invoke(command, args?) -> Promise<any>
//	on(event, callback) -> unsubscribe()
//
// and the two internal entry points the host drives: _settle for responses
// and _deliver for events.
const BootstrapScript = `(function () {
	if (window.__KREMA__) { return; }
	var pending = {};
	var listeners = {};
	var nextId = 0;
	window.__KREMA__ = {
		version: "` + bridgeVersion + `",
		invoke: function (command, args) {
			return new Promise(function (resolve, reject) {
				var id = String(++nextId);
				pending[id] = { resolve: resolve, reject: reject };
				window.` + invokeBinding + `(id, JSON.stringify({
					command: command,
					args: args === undefined ? null : args
				}));
			});
		},
		_settle: function (id, ok, result) {
			var call = pending[id];
			if (!call) { return; }
			delete pending[id];
			if (ok) {
				call.resolve(result);
			} else {
				call.reject(new Error(result && result.message));
			}
		},
		on: function (event, callback) {
			var list = listeners[event] || (listeners[event] = []);
			list.push(callback);
			return function () {
				var at = list.indexOf(callback);
				if (at >= 0) { list.splice(at, 1); }
			};
		},
		_deliver: function (event, payload) {
			var list = listeners[event];
			if (!list) { return; }
			list.slice().forEach(function (cb) { cb(payload); });
		}
	};
	window.` + readyBinding + `("0", JSON.stringify({ version: window.__KREMA__.version }));
})();`

// deliveryScript builds the fixed expression that hands one event to the
// frontend listener registry. The payload is already JSON.
func deliveryScript(name string, payloadJSON string) string {
	// Encoding the name through JSON keeps arbitrary event names safe to
	// splice into the script.
	quoted, _ := json.Marshal(name)
	return "window.__KREMA__ && window.__KREMA__._deliver(" + string(quoted) + ", " + payloadJSON + ");"
}
