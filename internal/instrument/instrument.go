package instrument

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"chorus/internal/crypto"
	"chorus/internal/domain"
)

// Class is the reconciler's verdict on one activity's instrument set.
type Class int

const (
	// ClassPlain means no encrypted payload is present.
	ClassPlain Class = iota
	// ClassPairwise means the payload decrypts against a ratchet session.
	ClassPairwise
	// ClassGroup means the payload decrypts against a group session.
	ClassGroup
)

// String returns a short label for logging.
func (c Class) String() string {
	switch c {
	case ClassPairwise:
		return "pairwise"
	case ClassGroup:
		return "group"
	default:
		return "plain"
	}
}

// Sealer builds and opens instruments bound to the local vault key.
type Sealer struct {
	key []byte
}

// NewSealer returns a Sealer using the given vault key.
func NewSealer(key []byte) *Sealer { return &Sealer{key: key} }

// Seal builds a secret-bearing instrument: the content hash is computed
// over the plaintext before sealing, and when prior is non-nil the new
// instrument supersedes it via mutation_of. Kinds that are not secret are
// rejected; use Public or Wire for those.
func (s *Sealer) Seal(kind domain.Kind, plaintext []byte, prior *domain.Instrument) (domain.Instrument, error) {
	if !kind.Valid() || !kind.Secret() {
		return domain.Instrument{}, fmt.Errorf("%w: kind %q is not sealable", domain.ErrFormat, kind)
	}
	hash, err := contentHash(plaintext)
	if err != nil {
		return domain.Instrument{}, err
	}
	ct, err := crypto.Seal(s.key, plaintext)
	if err != nil {
		return domain.Instrument{}, err
	}
	inst := domain.Instrument{
		Kind:    kind,
		Content: ct,
		Hash:    hash,
		UUID:    uuid.NewString(),
	}
	if prior != nil {
		inst.MutationOf = prior.Hash
	}
	return inst, nil
}

// Open verifies kind and shape, then returns the instrument's plaintext.
// Secret kinds are opened with the vault key; a declared kind that does
// not match the structural shape is a format error, never a panic.
func (s *Sealer) Open(inst domain.Instrument) ([]byte, error) {
	if !inst.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrFormat, inst.Kind)
	}
	if len(inst.Content) == 0 {
		return nil, fmt.Errorf("%w: %s instrument without content", domain.ErrFormat, inst.Kind)
	}
	if !inst.Kind.Secret() {
		return inst.Content, nil
	}
	pt, err := crypto.Open(s.key, inst.Content)
	if err != nil {
		return nil, err
	}
	if inst.Hash != "" {
		hash, herr := contentHash(pt)
		if herr == nil && hash != inst.Hash {
			return nil, fmt.Errorf("%w: content hash mismatch on %s", domain.ErrFormat, inst.Kind)
		}
	}
	return pt, nil
}

// Public builds a plaintext instrument for public key material.
func Public(kind domain.Kind, id string, content []byte) (domain.Instrument, error) {
	if !kind.Valid() || kind.Secret() {
		return domain.Instrument{}, fmt.Errorf("%w: kind %q is not public", domain.ErrFormat, kind)
	}
	return domain.Instrument{
		Kind:    kind,
		ID:      id,
		Content: content,
		UUID:    uuid.NewString(),
	}, nil
}

// Wire builds the instrument carrying an already-encrypted protocol
// payload (a ratchet envelope or group ciphertext) bound to a
// conversation. The content is protected by its own protocol, not by the
// local vault.
func Wire(kind domain.Kind, conversation domain.ConversationID, payload []byte) domain.Instrument {
	return domain.Instrument{
		Kind:         kind,
		Content:      payload,
		Conversation: conversation,
		UUID:         uuid.NewString(),
	}
}

// Classify inspects an activity's instrument set. A group marker (welcome,
// group id, or group ciphertext) makes the item group-encrypted; a vault
// item without group siblings is pairwise; anything else is plain.
func Classify(insts []domain.Instrument) Class {
	var hasPayload, hasGroupMarker bool
	for _, in := range insts {
		switch in.Kind {
		case domain.KindVaultItem:
			hasPayload = true
		case domain.KindWelcome, domain.KindGroupID, domain.KindGroupCiphertext:
			hasGroupMarker = true
		}
	}
	switch {
	case hasGroupMarker:
		return ClassGroup
	case hasPayload:
		return ClassPairwise
	default:
		return ClassPlain
	}
}

// Find returns the first instrument of the given kind.
func Find(insts []domain.Instrument, kind domain.Kind) (domain.Instrument, bool) {
	for _, in := range insts {
		if in.Kind == kind {
			return in, true
		}
	}
	return domain.Instrument{}, false
}

// contentHash fingerprints plaintext. JSON documents are canonicalized
// first so logically identical state always hashes identically; anything
// else is hashed as raw bytes.
func contentHash(plaintext []byte) (string, error) {
	if json.Valid(plaintext) {
		return crypto.CanonicalHash(plaintext)
	}
	return crypto.Hash(plaintext), nil
}
