// Package tripledh performs the asynchronous key agreement that seeds a
// pairwise double-ratchet session.
//
// The initiator combines their identity key and a fresh ephemeral key with
// the peer's published identity key and one consumable one-time key; the
// responder recomputes the same root from the PreKeyMessage attached to
// the first envelope. One-time keys are single-use: establishment without
// an unused one fails rather than downgrading.
package tripledh
