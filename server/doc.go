// Package server serves the assistant over HTTP.
//
// Routes:
//
//	GET  /GetVersion          {"version": "..."}
//	GET  /Ask?question=...    {"question": "...", "answer": "..."}
//	POST /api/ask             AskRequest -> AskResponse (mode "single" or "multi")
//	GET  /api/sessions/:id    archived core.Session
//	GET  /healthz
//	GET  /metrics             Prometheus exposition, when a Gatherer is set
package server
