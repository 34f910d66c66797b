// Package store provides credential stores for the auth client: an in-memory
// store and a file-backed store. Both expose a readiness barrier so callers can
// wait for hydration before the first read.
package store
