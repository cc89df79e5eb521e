// Package main hosts the Reelsmith CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into content
// registration, pipeline and composite job submission, queue maintenance
// operations, and configuration scaffolding. It centralizes configuration
// resolution and store lifecycles so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
// That separation keeps the CLI declarative while the heavy lifting lives in
// reusable workflow components.
package main
