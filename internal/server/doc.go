// Package server implements the core of the chat relay: the kind-tagged
// message protocol, per-connection sessions, the shared session registry,
// the dispatch loop, and broadcast fan-out.
//
// The implementation is organized into specialized files for the protocol,
// sessions, the registry, hub dispatch, configuration, routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows.
package server
