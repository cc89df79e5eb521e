// Package analysis segments source media into ordered scene ranges, either
// by sampling frames at a fixed interval or by slicing the timeline directly.
package analysis
