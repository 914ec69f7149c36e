package identity

import (
	"context"
	"fmt"
	"unicode"

	"go.uber.org/zap"

	"chorus/internal/crypto"
	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/instrument"
	"chorus/internal/protocol/account"
	"chorus/internal/state"
)

const (
	// minPassphraseLength is the minimum passphrase size accepted.
	minPassphraseLength = 12

	// initialOneTimeKeys is the pool size published at registration.
	initialOneTimeKeys = 20

	// DefaultLowWater is the published-and-available count below which
	// the pool is replenished.
	DefaultLowWater = 20

	// replenishBatch is how many keys one replenishment generates.
	replenishBatch = 10
)

// ErrWeakPassphrase is returned when the passphrase fails the strength
// policy.
var ErrWeakPassphrase = fmt.Errorf(
	"passphrase is too weak (must be at least %d characters and include upper, lower, "+
		"number, and symbol)",
	minPassphraseLength,
)

// Config carries the local actor context the service operates as.
type Config struct {
	Actor     domain.ActorID
	Username  string
	ServerURL string
}

// Service manages the local identity and key-exchange account: creation,
// vault unlock, publication of key material, and one-time key
// replenishment.
type Service struct {
	cfg    Config
	vault  domain.VaultStore
	client *fedi.Client
	st     *state.State
	log    *zap.Logger
}

// New returns an identity service.
func New(cfg Config, vault domain.VaultStore, client *fedi.Client, st *state.State, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, vault: vault, client: client, st: st, log: log}
}

// Register creates a fresh identity and account, seals them into a new
// vault, and publishes the initial credential batch: the identity key,
// the sealed account, and the first pool of one-time keys.
func (s *Service) Register(ctx context.Context, passphrase string) (domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return "", ErrWeakPassphrase
	}
	if _, ok, err := s.vault.LoadVault(); err != nil {
		return "", err
	} else if ok {
		return "", fmt.Errorf("vault already exists; refusing to overwrite")
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return "", err
	}
	key := crypto.DeriveKey(passphrase, salt)

	acc, err := account.New()
	if err != nil {
		return "", err
	}
	otks, err := account.GenerateOneTimeKeys(&acc, initialOneTimeKeys)
	if err != nil {
		return "", err
	}

	sealer := instrument.NewSealer(key)
	pickle, err := account.Pickle(acc)
	if err != nil {
		return "", err
	}
	accInst, err := sealer.Seal(domain.KindAccount, pickle, nil)
	if err != nil {
		return "", err
	}

	rec := domain.VaultRecord{
		Salt:           salt,
		SealedAccount:  accInst.Content,
		AccountHash:    accInst.Hash,
		SealedSessions: make(map[string][]byte),
		SessionHashes:  make(map[string]string),
		SealedGroups:   make(map[string][]byte),
		GroupHashes:    make(map[string]string),
	}
	if err := s.vault.SaveVault(rec); err != nil {
		return "", err
	}
	s.st.Authenticate(s.cfg.Actor, s.cfg.Username, s.cfg.ServerURL, key, salt, &acc)

	// Initial credential issuance: one batch of instruments.
	batch := make([]domain.Instrument, 0, 2+len(otks))
	ik, err := instrument.Public(domain.KindIdentityKey, "", acc.Identity.XPub.Slice())
	if err != nil {
		return "", err
	}
	batch = append(batch, ik, accInst)
	for _, otk := range otks {
		in, err := instrument.Public(domain.KindOneTimeKey, otk.ID.String(), otk.Pub.Slice())
		if err != nil {
			return "", err
		}
		batch = append(batch, in)
	}
	if err := s.client.PublishKeys(ctx, s.cfg.Actor, batch); err != nil {
		return "", err
	}

	// The server accepted the batch; the keys are now visible.
	err = s.st.Update(func(d *state.Data) error {
		ids := make([]domain.OneTimeKeyID, len(otks))
		for i, o := range otks {
			ids[i] = o.ID
		}
		account.MarkPublished(d.Account, ids)
		return s.persistAccount(d)
	})
	if err != nil {
		return "", err
	}

	fp := domain.Fingerprint(crypto.Fingerprint(acc.Identity.XPub.Slice()))
	s.log.Info("registered identity",
		zap.String("actor", s.cfg.Actor.String()),
		zap.String("fingerprint", string(fp)),
		zap.Int("one_time_keys", len(otks)))
	return fp, nil
}

// Unlock opens the vault with the passphrase and loads the account into
// the client state. A wrong passphrase or corrupted vault surfaces
// domain.ErrAuthenticationFailure.
func (s *Service) Unlock(ctx context.Context, passphrase string) error {
	rec, ok, err := s.vault.LoadVault()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no vault found; register first")
	}

	key := crypto.DeriveKey(passphrase, rec.Salt)
	pickle, err := crypto.Open(key, rec.SealedAccount)
	if err != nil {
		crypto.WipeKey(key)
		return err
	}
	acc, err := account.Unpickle(pickle)
	if err != nil {
		crypto.WipeKey(key)
		return err
	}
	s.st.Authenticate(s.cfg.Actor, s.cfg.Username, s.cfg.ServerURL, key, rec.Salt, &acc)
	return nil
}

// Fingerprint returns the short fingerprint of the loaded identity key.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	var fp domain.Fingerprint
	err := s.st.View(func(d state.Data) error {
		fp = domain.Fingerprint(crypto.Fingerprint(d.Account.Identity.XPub.Slice()))
		return nil
	})
	return fp, err
}

// IdentityKey returns the public identity key encoded for display,
// so peers can compare the full key and not just the fingerprint.
func (s *Service) IdentityKey() (string, error) {
	var enc string
	err := s.st.View(func(d state.Data) error {
		enc = crypto.B64(d.Account.Identity.XPub.Slice())
		return nil
	})
	return enc, err
}

// PublishKeys re-publishes the identity key together with any held
// one-time keys not yet marked published. Recovers from an issuance
// batch that never reached the server.
func (s *Service) PublishKeys(ctx context.Context) (int, error) {
	var n int
	err := s.st.Update(func(d *state.Data) error {
		batch := make([]domain.Instrument, 0, 1+len(d.Account.OneTime))
		ik, err := instrument.Public(domain.KindIdentityKey, "", d.Account.Identity.XPub.Slice())
		if err != nil {
			return err
		}
		batch = append(batch, ik)

		var ids []domain.OneTimeKeyID
		for id, pair := range d.Account.OneTime {
			if pair.Published {
				continue
			}
			in, err := instrument.Public(domain.KindOneTimeKey, id.String(), pair.Pub.Slice())
			if err != nil {
				return err
			}
			batch = append(batch, in)
			ids = append(ids, id)
		}
		if err := s.client.PublishKeys(ctx, s.cfg.Actor, batch); err != nil {
			return err
		}
		account.MarkPublished(d.Account, ids)
		n = len(ids)
		if n == 0 {
			return nil
		}
		return s.persistAccount(d)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("published key material", zap.Int("one_time_keys", n))
	return n, nil
}

// Replenish checks the remote-visible one-time key count and tops the
// pool up when it has dropped below threshold. Returns whether a
// replenishment was published.
func (s *Service) Replenish(ctx context.Context, threshold int) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultLowWater
	}
	remaining, err := s.client.OneTimeKeyCount(ctx, s.cfg.Actor)
	if err != nil {
		return false, err
	}
	if remaining >= threshold {
		return false, nil
	}

	var published bool
	err = s.st.Update(func(d *state.Data) error {
		otks, err := account.GenerateOneTimeKeys(d.Account, replenishBatch)
		if err != nil {
			return err
		}
		batch := make([]domain.Instrument, 0, len(otks))
		for _, otk := range otks {
			in, err := instrument.Public(domain.KindOneTimeKey, otk.ID.String(), otk.Pub.Slice())
			if err != nil {
				return err
			}
			batch = append(batch, in)
		}
		if err := s.client.PublishKeys(ctx, s.cfg.Actor, batch); err != nil {
			return err
		}
		ids := make([]domain.OneTimeKeyID, len(otks))
		for i, o := range otks {
			ids[i] = o.ID
		}
		account.MarkPublished(d.Account, ids)
		published = true
		return s.persistAccount(d)
	})
	if err != nil {
		return false, err
	}
	s.log.Info("replenished one-time keys",
		zap.Int("remaining_before", remaining),
		zap.Int("generated", replenishBatch))
	return published, nil
}

// persistAccount re-pickles and re-seals the account into the vault,
// tagging the superseded state's hash. Called with the state lock held.
func (s *Service) persistAccount(d *state.Data) error {
	rec, ok, err := s.vault.LoadVault()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("vault disappeared during account persist")
	}

	pickle, err := account.Pickle(*d.Account)
	if err != nil {
		return err
	}
	sealer := instrument.NewSealer(d.VaultKey)
	prior := domain.Instrument{Hash: rec.AccountHash}
	inst, err := sealer.Seal(domain.KindAccount, pickle, &prior)
	if err != nil {
		return err
	}

	rec.SealedAccount = inst.Content
	rec.AccountHash = inst.Hash
	return s.vault.SaveVault(rec)
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
