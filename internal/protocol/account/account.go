package account

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"chorus/internal/crypto"
	"chorus/internal/domain"
)

// New creates a fresh key-exchange account: identity keys and an empty
// one-time key pool.
func New() (domain.Account, error) {
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Account{}, err
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		Identity: domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv},
		OneTime:  make(map[domain.OneTimeKeyID]domain.OneTimeKeyPair),
	}, nil
}

// GenerateOneTimeKeys adds n fresh consumable keys to the pool and returns
// their public halves for publication.
func GenerateOneTimeKeys(a *domain.Account, n int) ([]domain.OneTimeKeyPublic, error) {
	if a.OneTime == nil {
		a.OneTime = make(map[domain.OneTimeKeyID]domain.OneTimeKeyPair)
	}
	out := make([]domain.OneTimeKeyPublic, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, err
		}
		id := domain.OneTimeKeyID("otk-" + uuid.NewString())
		a.OneTime[id] = domain.OneTimeKeyPair{ID: id, Priv: priv, Pub: pub}
		out = append(out, domain.OneTimeKeyPublic{ID: id, Pub: pub})
	}
	return out, nil
}

// MarkPublished flags the given keys as visible on the server.
func MarkPublished(a *domain.Account, ids []domain.OneTimeKeyID) {
	for _, id := range ids {
		if p, ok := a.OneTime[id]; ok {
			p.Published = true
			a.OneTime[id] = p
		}
	}
}

// Consume removes a one-time key from the pool and returns it. The
// removal is destructive: the key can never serve a second establishment.
func Consume(a *domain.Account, id domain.OneTimeKeyID) (domain.OneTimeKeyPair, bool) {
	p, ok := a.OneTime[id]
	if !ok {
		return domain.OneTimeKeyPair{}, false
	}
	delete(a.OneTime, id)
	return p, true
}

// PublishedCount reports how many keys in the pool are published and
// still unconsumed.
func PublishedCount(a domain.Account) int {
	n := 0
	for _, p := range a.OneTime {
		if p.Published {
			n++
		}
	}
	return n
}

// Pickle serializes the account for vault sealing.
func Pickle(a domain.Account) ([]byte, error) {
	return json.Marshal(a)
}

// Unpickle restores an account from its pickled form.
func Unpickle(b []byte) (domain.Account, error) {
	var a domain.Account
	if err := json.Unmarshal(b, &a); err != nil {
		return domain.Account{}, fmt.Errorf("%w: malformed account pickle", domain.ErrAuthenticationFailure)
	}
	if a.OneTime == nil {
		a.OneTime = make(map[domain.OneTimeKeyID]domain.OneTimeKeyPair)
	}
	return a, nil
}
