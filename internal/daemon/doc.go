// Package daemon provides the main orchestration for medialistenerd.
// It wires the media state source through the normalizer into the
// broadcast hub, runs the socket listener, and owns graceful shutdown
// and configuration hot-reload.
package daemon
