package domain

// Identity holds the local actor's long-term keys: an X25519 pair for key
// agreement and an Ed25519 pair for transport-level request signing.
// Created once at registration; never deleted except on account closure.
type Identity struct {
	XPub   X25519Public   `json:"x_pub"`
	XPriv  X25519Private  `json:"x_priv"`
	EdPub  Ed25519Public  `json:"ed_pub"`
	EdPriv Ed25519Private `json:"ed_priv"`
}

// OneTimeKeyPair is a consumable key held locally (private+public).
// Consuming one is destructive: it is removed from the pool and never
// offered to another establishment.
type OneTimeKeyPair struct {
	ID        OneTimeKeyID  `json:"id"`
	Priv      X25519Private `json:"priv"`
	Pub       X25519Public  `json:"pub"`
	Published bool          `json:"published"`
}

// OneTimeKeyPublic is the public half as it appears in a published
// instrument.
type OneTimeKeyPublic struct {
	ID  OneTimeKeyID `json:"id"`
	Pub X25519Public `json:"pub"`
}

// Account is the key-exchange account: identity keys plus the pool of
// one-time keys. It is pickled to JSON and vault-sealed whenever it
// changes (keys generated, consumed, or marked published).
type Account struct {
	Identity Identity                        `json:"identity"`
	OneTime  map[OneTimeKeyID]OneTimeKeyPair `json:"one_time"`
}

// VaultRecord is the flat persisted layout of the local vault. It travels
// to and from the server as an opaque encrypted field; the server never
// interprets it. Salt is generated once at account creation and must never
// be regenerated, or every previously sealed secret becomes unopenable.
type VaultRecord struct {
	Salt           []byte            `json:"salt"`
	SealedAccount  []byte            `json:"sealed_identity_account,omitempty"`
	AccountHash    string            `json:"account_hash,omitempty"`
	SealedSessions map[string][]byte `json:"sealed_sessions,omitempty"`
	SessionHashes  map[string]string `json:"session_hashes,omitempty"`
	SealedGroups   map[string][]byte `json:"sealed_groups,omitempty"`
	GroupHashes    map[string]string `json:"group_hashes,omitempty"`
}

// RatchetHeader is sent alongside every pairwise ciphertext.
type RatchetHeader struct {
	DHPub []byte `json:"dh_pub"`
	PN    uint32 `json:"pn"`
	N     uint32 `json:"n"`
}

// RatchetState contains all fields the double ratchet needs to track.
// It advances with every encrypt and decrypt and must be re-sealed and
// persisted immediately after each successful operation.
type RatchetState struct {
	RootKey   []byte            `json:"root_key"`
	DHPriv    X25519Private     `json:"dh_priv"`
	DHPub     X25519Public      `json:"dh_pub"`
	PeerDHPub X25519Public      `json:"peer_dh_pub"`
	SendCK    []byte            `json:"send_ck,omitempty"`
	RecvCK    []byte            `json:"recv_ck,omitempty"`
	Ns        uint32            `json:"ns"`
	Nr        uint32            `json:"nr"`
	PN        uint32            `json:"pn"`
	Skipped   map[string][]byte `json:"skipped,omitempty"`
}

// PreKeyMessage carries the key-agreement parameters on the first message
// of a new pairwise session.
type PreKeyMessage struct {
	InitiatorIK  X25519Public `json:"initiator_ik"`
	Ephemeral    X25519Public `json:"ephemeral"`
	OneTimeKeyID OneTimeKeyID `json:"one_time_key_id"`
}

// PairwiseEnvelope is one pairwise ciphertext with its ratchet header and,
// on the first message only, the pre-key bootstrap parameters.
type PairwiseEnvelope struct {
	Header RatchetHeader  `json:"header"`
	Cipher []byte         `json:"cipher"`
	PreKey *PreKeyMessage `json:"pre_key,omitempty"`
}

// GroupState is the sender-chain state of one group session. The chain
// ratchets forward with every message; Index is the next message number.
type GroupState struct {
	GroupID  GroupID           `json:"group_id"`
	ChainKey []byte            `json:"chain_key"`
	Index    uint32            `json:"index"`
	Skipped  map[uint32][]byte `json:"skipped,omitempty"`
}

// GroupMessage is one group application ciphertext.
type GroupMessage struct {
	GroupID GroupID `json:"group_id"`
	Index   uint32  `json:"index"`
	Cipher  []byte  `json:"cipher"`
}
