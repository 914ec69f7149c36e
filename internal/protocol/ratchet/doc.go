// Package ratchet implements the pairwise double ratchet.
//
// Sessions are seeded from a tripledh root key, advance on every encrypt
// and decrypt, and tolerate out-of-order delivery through a bounded
// skipped message-key cache. State is pickled to JSON for vault sealing;
// the caller owns persistence after every state change.
package ratchet
