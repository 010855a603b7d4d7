// Package session houses concrete implementations of core.SessionStore, the
// archive of finished orchestration runs. The interface itself (and the
// Session struct) live in the core package so that the engine never depends
// on concrete storage.
//
// InMemoryStore is the default. The sqlite sub-package provides a durable
// store; only the wiring layer decides which implementation to instantiate.
package session
