package groupratchet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"chorus/internal/crypto"
	"chorus/internal/domain"
	"chorus/internal/util/memzero"
)

const (
	chainLabel   = "chorus-group|ck"
	messageLabel = "chorus-group|mk"
	welcomeLabel = "chorus-group|welcome"

	// maxSkipped caps cached message keys for out-of-order delivery.
	maxSkipped = 500
)

// New creates a fresh group session with a random chain key.
func New() (domain.GroupState, error) {
	ck := make([]byte, 32)
	if _, err := rand.Read(ck); err != nil {
		return domain.GroupState{}, err
	}
	return domain.GroupState{
		GroupID:  domain.GroupID(uuid.NewString()),
		ChainKey: ck,
		Skipped:  make(map[uint32][]byte),
	}, nil
}

// Encrypt seals one application message under the key for the current
// index, then ratchets the chain forward. The consumed chain position is
// unrecoverable afterwards, which is what provides forward secrecy.
func Encrypt(st *domain.GroupState, plaintext []byte) (domain.GroupMessage, error) {
	mk := messageKey(st.ChainKey, st.Index)
	defer memzero.Zero(mk)

	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return domain.GroupMessage{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[len(nonce)-4:], st.Index)
	ct := aead.Seal(nil, nonce, plaintext, []byte(st.GroupID))

	msg := domain.GroupMessage{GroupID: st.GroupID, Index: st.Index, Cipher: ct}
	st.ChainKey = advance(st.ChainKey)
	st.Index++
	return msg, nil
}

// Decrypt opens one application message. In-order messages advance the
// chain; ahead-of-order messages cache the intermediate keys; an index
// already consumed (and not cached) fails with domain.ErrDecrypt.
func Decrypt(st *domain.GroupState, msg domain.GroupMessage) ([]byte, error) {
	if msg.GroupID != st.GroupID {
		return nil, fmt.Errorf("%w: message for group %q, state holds %q", domain.ErrDecrypt, msg.GroupID, st.GroupID)
	}

	var mk []byte
	switch {
	case msg.Index < st.Index:
		cached, ok := st.Skipped[msg.Index]
		if !ok {
			return nil, fmt.Errorf("%w: index %d already consumed", domain.ErrDecrypt, msg.Index)
		}
		mk = cached
		delete(st.Skipped, msg.Index)
	default:
		// Ratchet up to the message index, caching skipped keys.
		for st.Index < msg.Index {
			if len(st.Skipped) < maxSkipped {
				st.Skipped[st.Index] = messageKey(st.ChainKey, st.Index)
			}
			st.ChainKey = advance(st.ChainKey)
			st.Index++
		}
		mk = messageKey(st.ChainKey, st.Index)
		st.ChainKey = advance(st.ChainKey)
		st.Index++
	}
	defer memzero.Zero(mk)

	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[len(nonce)-4:], msg.Index)
	pt, err := aead.Open(nil, nonce, msg.Cipher, []byte(st.GroupID))
	if err != nil {
		return nil, fmt.Errorf("%w: aead open", domain.ErrDecrypt)
	}
	return pt, nil
}

// Welcome seals the current group state to one member's public key so the
// member can derive the session without its prior history. The blob is an
// ephemeral public key followed by an AEAD ciphertext.
func Welcome(st domain.GroupState, memberPub domain.X25519Public) ([]byte, error) {
	// Skipped keys are local recovery state, not part of the group.
	snapshot := domain.GroupState{GroupID: st.GroupID, ChainKey: st.ChainKey, Index: st.Index}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	shared, err := crypto.DH(ephPriv, memberPub)
	if err != nil {
		return nil, err
	}
	memzero.Zero(ephPriv[:])
	key := welcomeKey(shared)
	memzero.Zero(shared[:])
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	blob := make([]byte, 0, 32+len(nonce)+len(raw)+16)
	blob = append(blob, ephPub[:]...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, raw, ephPub[:])
	return blob, nil
}

// ConsumeWelcome opens a welcome blob with the member's private key and
// restores the group state it carries. Any parse or open failure surfaces
// domain.ErrGroupJoinFailed.
func ConsumeWelcome(memberPriv domain.X25519Private, blob []byte) (domain.GroupState, error) {
	const headerLen = 32 + chacha20poly1305.NonceSize
	if len(blob) < headerLen {
		return domain.GroupState{}, fmt.Errorf("%w: short welcome blob", domain.ErrGroupJoinFailed)
	}
	var ephPub domain.X25519Public
	copy(ephPub[:], blob[:32])
	nonce := blob[32:headerLen]

	shared, err := crypto.DH(memberPriv, ephPub)
	if err != nil {
		return domain.GroupState{}, fmt.Errorf("%w: %v", domain.ErrGroupJoinFailed, err)
	}
	key := welcomeKey(shared)
	memzero.Zero(shared[:])
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return domain.GroupState{}, err
	}
	raw, err := aead.Open(nil, nonce, blob[headerLen:], ephPub[:])
	if err != nil {
		return domain.GroupState{}, fmt.Errorf("%w: welcome open", domain.ErrGroupJoinFailed)
	}

	var st domain.GroupState
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.GroupState{}, fmt.Errorf("%w: malformed welcome payload", domain.ErrGroupJoinFailed)
	}
	if st.GroupID == "" || len(st.ChainKey) != 32 {
		return domain.GroupState{}, fmt.Errorf("%w: incomplete group state", domain.ErrGroupJoinFailed)
	}
	st.Skipped = make(map[uint32][]byte)
	return st, nil
}

// Marshal serializes group state for vault sealing.
func Marshal(st domain.GroupState) ([]byte, error) {
	return json.Marshal(st)
}

// Unmarshal restores group state from its serialized form.
func Unmarshal(b []byte) (domain.GroupState, error) {
	var st domain.GroupState
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.GroupState{}, fmt.Errorf("%w: malformed group pickle", domain.ErrDecrypt)
	}
	if st.Skipped == nil {
		st.Skipped = make(map[uint32][]byte)
	}
	return st, nil
}

// advance ratchets the chain key one step.
func advance(ck []byte) []byte {
	r := hkdf.New(sha256.New, ck, nil, []byte(chainLabel))
	next := make([]byte, 32)
	_, _ = io.ReadFull(r, next)
	return next
}

// messageKey derives the key for one index without consuming the chain.
func messageKey(ck []byte, index uint32) []byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	r := hkdf.New(sha256.New, ck, idx[:], []byte(messageLabel))
	mk := make([]byte, 32)
	_, _ = io.ReadFull(r, mk)
	return mk
}

func welcomeKey(shared [32]byte) []byte {
	r := hkdf.New(sha256.New, shared[:], nil, []byte(welcomeLabel))
	key := make([]byte, 32)
	_, _ = io.ReadFull(r, key)
	return key
}
