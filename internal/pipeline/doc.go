// Package pipeline drives one content item through download, analysis, and
// template rendering, strictly in order, persisting progress on the item at
// every checkpoint.
package pipeline
