// Package store provides file-based persistence for the client's core data.
//
// The vault record is one flat JSON file of sealed blobs keyed by peer or
// conversation; reconciliation metadata lives beside it in the clear. All
// writes go through a temp file and rename, and all methods are
// concurrency-safe via internal locking.
package store
