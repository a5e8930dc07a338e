// Package daemon wires the queue store, workflow manager, inbox watcher,
// backup loop, and HTTP API into a single supervised process. A file
// lock enforces one instance per log directory.
package daemon
