package tripledh

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"chorus/internal/crypto"
	"chorus/internal/domain"
	"chorus/internal/util/memzero"
)

const rootLabel = "chorus-3dh-v1"

// ErrMissingOneTimeKey is returned when establishment is attempted without
// a consumable one-time key for the peer.
var ErrMissingOneTimeKey = errors.New("no one-time key available for peer")

// InitiatorRoot runs the asynchronous triple Diffie–Hellman as the
// initiator: our identity key against the peer's published identity key
// and exactly one of their one-time keys. It returns the root key seeding
// the double ratchet and the PreKeyMessage the first envelope must carry.
func InitiatorRoot(
	local domain.Identity,
	peerIK domain.X25519Public,
	peerOneTime domain.OneTimeKeyPublic,
) ([]byte, domain.PreKeyMessage, error) {
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}

	dh1, err := crypto.DH(local.XPriv, peerOneTime.Pub) // DH(IK_A, OTK_B)
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}
	dh2, err := crypto.DH(ephPriv, peerIK) // DH(EK_A, IK_B)
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}
	dh3, err := crypto.DH(ephPriv, peerOneTime.Pub) // DH(EK_A, OTK_B)
	if err != nil {
		return nil, domain.PreKeyMessage{}, err
	}

	root := deriveRoot(dh1, dh2, dh3)
	memzero.Zero(dh1[:])
	memzero.Zero(dh2[:])
	memzero.Zero(dh3[:])
	memzero.Zero(ephPriv[:])

	pre := domain.PreKeyMessage{
		InitiatorIK:  local.XPub,
		Ephemeral:    ephPub,
		OneTimeKeyID: peerOneTime.ID,
	}
	return root, pre, nil
}

// ResponderRoot recomputes the initiator's root key from the received
// PreKeyMessage using our identity and the private half of the one-time
// key the initiator consumed.
func ResponderRoot(
	local domain.Identity,
	oneTimePriv domain.X25519Private,
	pre domain.PreKeyMessage,
) ([]byte, error) {
	dh1, err := crypto.DH(oneTimePriv, pre.InitiatorIK) // DH(OTK_B, IK_A)
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(local.XPriv, pre.Ephemeral) // DH(IK_B, EK_A)
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(oneTimePriv, pre.Ephemeral) // DH(OTK_B, EK_A)
	if err != nil {
		return nil, err
	}

	root := deriveRoot(dh1, dh2, dh3)
	memzero.Zero(dh1[:])
	memzero.Zero(dh2[:])
	memzero.Zero(dh3[:])
	return root, nil
}

func deriveRoot(dhs ...[32]byte) []byte {
	ikm := make([]byte, 0, 32*len(dhs))
	for _, d := range dhs {
		ikm = append(ikm, d[:]...)
	}
	r := hkdf.New(sha256.New, ikm, nil, []byte(rootLabel))
	root := make([]byte, 32)
	_, _ = io.ReadFull(r, root)
	memzero.Zero(ikm)
	return root
}
