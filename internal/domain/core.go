package domain

// ActorID is the stable federated address of an actor (e.g. an acct: URI or
// profile URL). Pairwise sessions are keyed by it.
type ActorID string

// String returns the string form of the actor id.
func (a ActorID) String() string { return string(a) }

// ConversationID groups all activities belonging to one multi-party
// encrypted thread. It is the join key between group instruments and the
// notes they accompany.
type ConversationID string

// String returns the string form of the conversation identifier.
func (c ConversationID) String() string { return string(c) }

// GroupID identifies a group session independently of any conversation.
type GroupID string

// String returns the string form of the group identifier.
func (g GroupID) String() string { return string(g) }

// OneTimeKeyID uniquely identifies a published one-time key.
type OneTimeKeyID string

// String returns the string form of the identifier.
func (id OneTimeKeyID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a byte slice.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a byte slice.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is a signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a byte slice.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is a signing private key (ed25519.PrivateKey layout).
type Ed25519Private [64]byte

// Slice returns the key as a byte slice.
func (k Ed25519Private) Slice() []byte { return k[:] }
