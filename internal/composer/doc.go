// Package composer fans per-scene generation requests out to the provider
// through the job queue and fans them back in to one concatenated composite
// artifact, ordered strictly by scene index.
package composer
