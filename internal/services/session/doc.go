// Package session establishes and drives pairwise ratchet sessions.
//
// Outbound establishment consumes one of the peer's published one-time
// keys; inbound establishment bootstraps from the pre-key parameters on a
// first envelope. Every successful encrypt or decrypt re-seals the
// session into the vault before the result is returned.
package session
