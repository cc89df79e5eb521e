// Package generation adapts the external asynchronous video-generation
// provider: bearer-token caching, submission, and the bounded status poll
// that drives every Generation to a terminal state.
package generation
