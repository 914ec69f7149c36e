package tripledh_test

import (
	"bytes"
	"testing"

	"chorus/internal/crypto"
	"chorus/internal/domain"
	"chorus/internal/protocol/tripledh"
)

func makeIdentity(t *testing.T) domain.Identity {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	return domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv}
}

func TestInitiatorAndResponderAgree(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)

	otkPriv, otkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519 (one-time): %v", err)
	}
	oneTime := domain.OneTimeKeyPublic{ID: domain.OneTimeKeyID("otk-1"), Pub: otkPub}

	rootA, pre, err := tripledh.InitiatorRoot(alice, bob.XPub, oneTime)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	if pre.OneTimeKeyID != oneTime.ID {
		t.Fatalf("want one-time key id %q, got %q", oneTime.ID, pre.OneTimeKeyID)
	}
	if pre.InitiatorIK != alice.XPub {
		t.Fatal("pre-key message must carry the initiator identity key")
	}

	rootB, err := tripledh.ResponderRoot(bob, otkPriv, pre)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if !bytes.Equal(rootA, rootB) {
		t.Fatal("initiator and responder derived different roots")
	}
	if len(rootA) != 32 {
		t.Fatalf("root length = %d, want 32", len(rootA))
	}
}

func TestDifferentOneTimeKeysDiverge(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)

	_, otk1, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	_, otk2, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	root1, _, err := tripledh.InitiatorRoot(alice, bob.XPub, domain.OneTimeKeyPublic{ID: "a", Pub: otk1})
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	root2, _, err := tripledh.InitiatorRoot(alice, bob.XPub, domain.OneTimeKeyPublic{ID: "b", Pub: otk2})
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	if bytes.Equal(root1, root2) {
		t.Fatal("distinct one-time keys must derive distinct roots")
	}
}
