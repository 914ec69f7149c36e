// Package devserver implements a single-process in-memory federation
// instance: key directory, destructive one-time-key claims, and ordered
// per-actor inbox queues. It backs cmd/feddev and the service tests.
package devserver
