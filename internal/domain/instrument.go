package domain

// Kind discriminates the shapes an Instrument can take. It is a closed
// tagged union: every consumer switches on Kind before touching Content,
// and unknown kinds are a format error, never a structural guess.
type Kind string

const (
	// KindIdentityKey carries a public identity key. Plaintext.
	KindIdentityKey Kind = "IdentityKey"
	// KindOneTimeKey carries one published one-time public key. Plaintext.
	KindOneTimeKey Kind = "OneTimeKey"
	// KindSession carries a vault-sealed pairwise ratchet session.
	KindSession Kind = "Session"
	// KindAccount carries the vault-sealed key-exchange account.
	KindAccount Kind = "Account"
	// KindVaultItem carries arbitrary vault-sealed content.
	KindVaultItem Kind = "VaultItem"
	// KindGroupID references an already-joined group by identifier. Plaintext.
	KindGroupID Kind = "GroupId"
	// KindWelcome carries a group welcome blob addressed to one member.
	// Sealed to the recipient, not to the local vault.
	KindWelcome Kind = "Welcome"
	// KindGroupCiphertext carries one group application message.
	KindGroupCiphertext Kind = "GroupCiphertext"
)

// Valid reports whether k names a known instrument kind.
func (k Kind) Valid() bool {
	switch k {
	case KindIdentityKey, KindOneTimeKey, KindSession, KindAccount,
		KindVaultItem, KindGroupID, KindWelcome, KindGroupCiphertext:
		return true
	}
	return false
}

// Secret reports whether content of this kind must be vault-sealed before
// it leaves the process. Public key material travels in the clear; welcomes
// and group ciphertexts are already encrypted by their own protocol.
func (k Kind) Secret() bool {
	switch k {
	case KindSession, KindAccount, KindVaultItem:
		return true
	}
	return false
}

// Instrument is the envelope moving any piece of key material alongside a
// federated activity: identity keys, one-time keys, pickled accounts and
// sessions, group ids, welcomes, vault items.
//
// Hash is computed over the plaintext before sealing and serves as the
// version fingerprint. MutationOf names the hash of the prior state this
// instrument supersedes; a receiver must reject an update whose MutationOf
// does not match what it currently stores (read-hash-mutate-write, never
// blind-write).
type Instrument struct {
	Kind         Kind           `json:"kind"`
	ID           string         `json:"id,omitempty"`
	Content      []byte         `json:"content,omitempty"`
	Hash         string         `json:"hash,omitempty"`
	UUID         string         `json:"uuid,omitempty"`
	MutationOf   string         `json:"mutation_of,omitempty"`
	Conversation ConversationID `json:"conversation,omitempty"`
	Activity     string         `json:"activity,omitempty"`
}
