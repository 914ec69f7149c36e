// Package groupratchet implements the multi-party session primitive: a
// sender-chain ratchet shared by all members of a conversation.
//
// A member joins by consuming a Welcome, a one-shot box of the current
// chain state sealed to their public key, and from then on derives each
// message key from the chain. The chain only moves forward; consumed
// positions cannot be re-derived, and replaying a consumed index fails.
package groupratchet
