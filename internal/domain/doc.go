// Package domain defines the core types of the encryption client: typed
// identifiers, the instrument envelope, account and session state, the
// persisted vault layout, the error taxonomy, and the interfaces the
// services are wired through.
package domain
