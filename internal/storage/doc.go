// Package storage provides the key-addressed blob store backing source
// media, generated clips, and composed artifacts.
package storage
