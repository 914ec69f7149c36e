package account_test

import (
	"testing"

	"chorus/internal/domain"
	"chorus/internal/protocol/account"
)

func TestConsumeIsDestructive(t *testing.T) {
	a, err := account.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pubs, err := account.GenerateOneTimeKeys(&a, 3)
	if err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}
	id := pubs[0].ID

	if _, ok := account.Consume(&a, id); !ok {
		t.Fatalf("first consume of %q failed", id)
	}
	if _, ok := account.Consume(&a, id); ok {
		t.Fatalf("second consume of %q succeeded; consumption must be destructive", id)
	}
	if len(a.OneTime) != 2 {
		t.Fatalf("pool size = %d, want 2", len(a.OneTime))
	}
}

func TestPublishedCount(t *testing.T) {
	a, err := account.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pubs, err := account.GenerateOneTimeKeys(&a, 5)
	if err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}
	if got := account.PublishedCount(a); got != 0 {
		t.Fatalf("PublishedCount before publish = %d, want 0", got)
	}

	ids := []domain.OneTimeKeyID{pubs[0].ID, pubs[1].ID}
	account.MarkPublished(&a, ids)
	if got := account.PublishedCount(a); got != 2 {
		t.Fatalf("PublishedCount = %d, want 2", got)
	}

	account.Consume(&a, pubs[0].ID)
	if got := account.PublishedCount(a); got != 1 {
		t.Fatalf("PublishedCount after consume = %d, want 1", got)
	}
}

func TestPickleRoundTrip(t *testing.T) {
	a, err := account.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := account.GenerateOneTimeKeys(&a, 2); err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}

	blob, err := account.Pickle(a)
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	restored, err := account.Unpickle(blob)
	if err != nil {
		t.Fatalf("Unpickle: %v", err)
	}
	if restored.Identity.XPub != a.Identity.XPub {
		t.Fatal("identity key lost across pickle")
	}
	if len(restored.OneTime) != 2 {
		t.Fatalf("one-time pool size = %d, want 2", len(restored.OneTime))
	}
}
