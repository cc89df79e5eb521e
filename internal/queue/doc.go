// Package queue implements the durable job queue backing all asynchronous
// work: named queues, JSON payloads, worker pools with per-queue concurrency,
// heartbeat-based reclamation of abandoned jobs, and the admin operations
// exposed by the CLI. State lives in SQLite so jobs survive restarts.
package queue
