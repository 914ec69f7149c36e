package domain

import "context"

// VaultStore persists the opaque vault record locally.
type VaultStore interface {
	LoadVault() (VaultRecord, bool, error)
	SaveVault(VaultRecord) error
}

// CacheStore persists reconciliation metadata: the conversation-to-group
// mapping and the set of inbox item ids already processed. Not secrets.
type CacheStore interface {
	LoadGroupCache() (map[ConversationID]GroupID, error)
	SaveGroupCache(map[ConversationID]GroupID) error
	LoadProcessed() (map[string]bool, error)
	SaveProcessed(map[string]bool) error
}

// Transport is the opaque HTTP-like boundary to the federated server.
// Network absence surfaces as ErrTransport, never a partial body.
type Transport interface {
	Send(ctx context.Context, path string, body []byte, contentType string) ([]byte, error)
	Fetch(ctx context.Context, path string, contentType string) ([]byte, error)
}

// Signer produces a transport-level signature header for an outbound
// request. Implemented by an external collaborator.
type Signer interface {
	Sign(host, path string, body []byte) (string, error)
}

// SessionManager owns the lifecycle of pairwise ratchet sessions.
type SessionManager interface {
	SendKeyExchange(ctx context.Context, peer ActorID) error
	Encrypt(ctx context.Context, peer ActorID, plaintext []byte) (PairwiseEnvelope, error)
	Decrypt(ctx context.Context, peer ActorID, env PairwiseEnvelope) ([]byte, error)
}

// GroupManager owns the lifecycle of multi-party group sessions.
type GroupManager interface {
	JoinFromWelcome(conversation ConversationID, welcome Instrument) (GroupID, error)
	Encrypt(conversation ConversationID, plaintext []byte) (Instrument, error)
	Decrypt(conversation ConversationID, activity Activity) ([]byte, error)
}
