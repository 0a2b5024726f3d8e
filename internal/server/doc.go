// Package server provides the HTTP API for chatrelay.
//
// The server is a chi router over a dispatch.Dispatcher. Handlers decode the
// request, call one Dispatcher operation, and encode the outcome.
//
// # API Endpoints
//
//   - GET /health: liveness and provider availability
//   - GET /chat/{preset}: open a session from an interface preset
//     (default, search, nosystem) for a fresh user
//   - /api/sessions: create, list by user, get, delete
//   - /api/sessions/{id}/messages: send a message, returns a dispatch.Result
//   - /api/sessions/{id}/history: ordered turns
//   - /api/sessions/{id}/export and /api/download/{filename}: conversation export
//   - /api/prompts, /api/welcome: prompt catalog lookups
//   - /api/events: Server-Sent Events stream of the event bus
//
// # Error Mapping
//
// Errors are written as {"error": {"code", "message"}}. Unknown sessions map
// to 404 and malformed bodies to 400. Persistence failures are 500. A message
// that fails at the provider is a 200 carrying success=false.
//
// # Usage Example
//
//	cfg := server.DefaultConfig()
//	cfg.Addr = "0.0.0.0:8000"
//
//	srv := server.New(cfg, dispatcher, exporter, bus, server.Status{Assistants: true})
//	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
//		log.Fatal(err)
//	}
package server
