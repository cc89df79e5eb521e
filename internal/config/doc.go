// Package config loads, validates, and normalizes the reelsmith configuration.
//
// Configuration is resolved exactly once at process start and threaded through
// constructors; no package reads environment variables or config files on its
// own. The zero configuration is not usable: callers go through Load or
// Default.
package config
