// Package fetcher talks to the source media download service. It pulls raw
// video bytes and post metadata for a shortcode.
package fetcher
