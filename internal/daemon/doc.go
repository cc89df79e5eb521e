// Package daemon wires the stores, the worker pools, and the queue handlers
// into a single-instance background process.
package daemon
