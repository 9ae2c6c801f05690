// krema runs desktop applications as a native webview host with a web frontend,
// bridged by a single command/event channel.
//
// The backend side of an application is a set of command objects: ordinary Go
// values whose exported methods become named procedures the frontend can call
// with `invoke(command, args)`. The frontend side is whatever web code the
// webview loads; it talks to the backend only through the bridge installed by
// BootstrapScript.
//
// # Commands
//
// Command objects are registered on an App (or directly on a Registry) before
// the application starts. Registration walks each object and binds one command
// per procedure, named after the method with a leading lowercase letter:
//
//	type Clock struct{}
//
//	func (c *Clock) Now() string { return time.Now().Format(time.RFC3339) }
//
//	app.Register(&Clock{}) // frontend: await invoke("now")
//
// There are two ways a procedure gets bound. If a Registrar generated by the
// binding generator was supplied for the object's type, its closures are used
// and no reflection happens at call time. Otherwise the methods are discovered
// by reflection and arguments are resolved from the request JSON by name.
// Both paths share one set of coercion rules, so a command behaves the same
// however it was bound.
//
// Arguments arrive as a JSON object. A parameter of type *Request receives the
// whole request; a single struct or map parameter consumes the entire argument
// object; anything else is looked up by parameter name, with absent or null
// fields resolving to the type's zero value.
//
// # Events
//
// Backend code pushes notifications through an Emitter:
//
//	app.Events().Emit("download:progress", 0.42)
//
// Emission is fire-and-forget and safe from any goroutine. Frontend listeners
// subscribe with `on(event, callback)`.
//
// # Transport
//
// The native webview engine is not part of this package. It is reached through
// the Transport capability: bind a host function, settle a pending call,
// evaluate a script, navigate. Any engine that can do those four things can
// host a krema application.
package krema
