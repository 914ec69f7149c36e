package ratchet_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"chorus/internal/crypto"
	"chorus/internal/domain"
	"chorus/internal/protocol/ratchet"
)

// newPair seeds two sessions from the same root, as a completed key
// agreement would.
func newPair(t *testing.T) (a, b domain.RatchetState) {
	t.Helper()
	rk := bytes.Repeat([]byte{0x42}, 32)

	// The initiator ratchets against the responder's identity key; the
	// responder answers with the initiator's first ratchet pub.
	idPriv, idPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	a, err = ratchet.InitAsInitiator(rk, idPub)
	if err != nil {
		t.Fatalf("InitAsInitiator: %v", err)
	}
	b, err = ratchet.InitAsResponder(rk, idPriv, a.DHPub)
	if err != nil {
		t.Fatalf("InitAsResponder: %v", err)
	}
	return a, b
}

func TestOneRoundTrip(t *testing.T) {
	a, b := newPair(t)

	header, ct, err := ratchet.Encrypt(&a, nil, []byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := ratchet.Decrypt(&b, nil, header, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "hi" {
		t.Fatalf("got %q, want %q", pt, "hi")
	}
}

func TestOrderedSequenceDecryptsInOrder(t *testing.T) {
	a, b := newPair(t)

	for i := 0; i < 10; i++ {
		msg := []byte(fmt.Sprintf("message %d", i))
		header, ct, err := ratchet.Encrypt(&a, nil, msg)
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		pt, err := ratchet.Decrypt(&b, nil, header, ct)
		if err != nil {
			t.Fatalf("Decrypt %d: %v", i, err)
		}
		if !bytes.Equal(pt, msg) {
			t.Fatalf("message %d: got %q, want %q", i, pt, msg)
		}
	}
}

func TestReplaySameCiphertextFails(t *testing.T) {
	a, b := newPair(t)

	header, ct, err := ratchet.Encrypt(&a, nil, []byte("once"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := ratchet.Decrypt(&b, nil, header, ct); err != nil {
		t.Fatalf("first Decrypt: %v", err)
	}
	// Decrypting the same ciphertext again with the advanced ratchet must
	// fail; the message key has been consumed.
	if _, err := ratchet.Decrypt(&b, nil, header, ct); !errors.Is(err, domain.ErrDecrypt) {
		t.Fatalf("replay: got %v, want ErrDecrypt", err)
	}
}

func TestBidirectionalConversation(t *testing.T) {
	a, b := newPair(t)

	h1, c1, err := ratchet.Encrypt(&a, nil, []byte("ping"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := ratchet.Decrypt(&b, nil, h1, c1); err != nil {
		t.Fatalf("Decrypt ping: %v", err)
	}

	// Responder's first send steps the DH ratchet.
	h2, c2, err := ratchet.Encrypt(&b, nil, []byte("pong"))
	if err != nil {
		t.Fatalf("Encrypt pong: %v", err)
	}
	pt, err := ratchet.Decrypt(&a, nil, h2, c2)
	if err != nil {
		t.Fatalf("Decrypt pong: %v", err)
	}
	if string(pt) != "pong" {
		t.Fatalf("got %q, want %q", pt, "pong")
	}
}

func TestOutOfOrderViaSkippedKeys(t *testing.T) {
	a, b := newPair(t)

	h1, c1, err := ratchet.Encrypt(&a, nil, []byte("first"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	h2, c2, err := ratchet.Encrypt(&a, nil, []byte("second"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if pt, err := ratchet.Decrypt(&b, nil, h2, c2); err != nil || string(pt) != "second" {
		t.Fatalf("Decrypt second: %v %q", err, pt)
	}
	if pt, err := ratchet.Decrypt(&b, nil, h1, c1); err != nil || string(pt) != "first" {
		t.Fatalf("Decrypt first (skipped): %v %q", err, pt)
	}
}

func TestPickleRoundTrip(t *testing.T) {
	a, b := newPair(t)

	h1, c1, err := ratchet.Encrypt(&a, nil, []byte("before pickle"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := ratchet.Decrypt(&b, nil, h1, c1); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	blob, err := ratchet.Pickle(b)
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	restored, err := ratchet.Unpickle(blob)
	if err != nil {
		t.Fatalf("Unpickle: %v", err)
	}

	h2, c2, err := ratchet.Encrypt(&a, nil, []byte("after pickle"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := ratchet.Decrypt(&restored, nil, h2, c2)
	if err != nil {
		t.Fatalf("Decrypt with restored state: %v", err)
	}
	if string(pt) != "after pickle" {
		t.Fatalf("got %q", pt)
	}
}
