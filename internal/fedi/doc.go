// Package fedi is the boundary to the federated server: an opaque
// HTTP-like transport plus typed helpers for the endpoints the encryption
// core needs (outbox publication, inbox pages, the key directory).
//
// Request signing is delegated to an external Signer; this package never
// implements it.
package fedi
