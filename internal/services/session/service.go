package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/instrument"
	"chorus/internal/protocol/account"
	"chorus/internal/protocol/ratchet"
	"chorus/internal/protocol/tripledh"
	"chorus/internal/state"
)

// Service owns the lifecycle of pairwise ratchet sessions: establishment
// via key exchange, message encryption and decryption, and persistence.
// There is at most one active session per peer; a peer that republishes
// keys gets a fresh session, never a migrated one.
type Service struct {
	vault  domain.VaultStore
	client *fedi.Client
	st     *state.State
	log    *zap.Logger
}

// New returns a session service.
func New(vault domain.VaultStore, client *fedi.Client, st *state.State, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{vault: vault, client: client, st: st, log: log}
}

// SendKeyExchange establishes (or refreshes) a pairwise session with peer
// and publishes the resulting key-exchange activity. Establishment
// requires the peer's published identity key and exactly one unconsumed
// one-time key; missing either aborts with domain.ErrKeyExchangeFailed.
func (s *Service) SendKeyExchange(ctx context.Context, peer domain.ActorID) error {
	ikInst, err := s.client.FetchIdentityKey(ctx, peer)
	if err != nil {
		return fmt.Errorf("%w: fetch identity key for %s: %v", domain.ErrKeyExchangeFailed, peer, err)
	}
	if ikInst.Kind != domain.KindIdentityKey || len(ikInst.Content) != 32 {
		return fmt.Errorf("%w: malformed identity key for %s", domain.ErrKeyExchangeFailed, peer)
	}
	var peerIK domain.X25519Public
	copy(peerIK[:], ikInst.Content)

	otkInst, err := s.client.ClaimOneTimeKey(ctx, peer)
	if err != nil {
		return fmt.Errorf("%w: claim one-time key for %s: %v", domain.ErrKeyExchangeFailed, peer, err)
	}
	if len(otkInst.Content) != 32 || otkInst.ID == "" {
		return fmt.Errorf("%w: malformed one-time key for %s", domain.ErrKeyExchangeFailed, peer)
	}
	var otkPub domain.X25519Public
	copy(otkPub[:], otkInst.Content)
	oneTime := domain.OneTimeKeyPublic{ID: domain.OneTimeKeyID(otkInst.ID), Pub: otkPub}

	var env domain.PairwiseEnvelope
	var username string
	err = s.st.Update(func(d *state.Data) error {
		username = d.Username
		root, pre, err := tripledh.InitiatorRoot(d.Account.Identity, peerIK, oneTime)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrKeyExchangeFailed, err)
		}
		rst, err := ratchet.InitAsInitiator(root, peerIK)
		if err != nil {
			return err
		}
		header, ct, err := ratchet.Encrypt(&rst, nil, []byte("key exchange"))
		if err != nil {
			return err
		}
		env = domain.PairwiseEnvelope{Header: header, Cipher: ct, PreKey: &pre}
		return s.persistSession(d, peer, rst)
	})
	if err != nil {
		return err
	}

	if err := s.publishEnvelope(ctx, username, peer, env); err != nil {
		return err
	}
	s.log.Info("key exchange sent", zap.String("peer", peer.String()))
	return nil
}

// Encrypt encrypts plaintext for peer with the active session, advancing
// the ratchet and persisting the new state before returning.
func (s *Service) Encrypt(ctx context.Context, peer domain.ActorID, plaintext []byte) (domain.PairwiseEnvelope, error) {
	var env domain.PairwiseEnvelope
	err := s.st.Update(func(d *state.Data) error {
		rst, err := s.loadSession(d, peer)
		if err != nil {
			return err
		}
		header, ct, err := ratchet.Encrypt(&rst, nil, plaintext)
		if err != nil {
			return err
		}
		env = domain.PairwiseEnvelope{Header: header, Cipher: ct}
		return s.persistSession(d, peer, rst)
	})
	return env, err
}

// Decrypt decrypts one pairwise envelope from peer. The first envelope of
// a new session carries pre-key parameters and bootstraps inbound
// establishment, destructively consuming the referenced local one-time
// key; a pre-key envelope for a peer with an existing session replaces
// that session. Ratchet state (and, on bootstrap, the account) is
// re-sealed and persisted immediately after a successful operation.
func (s *Service) Decrypt(ctx context.Context, peer domain.ActorID, env domain.PairwiseEnvelope) ([]byte, error) {
	var plaintext []byte
	err := s.st.Update(func(d *state.Data) error {
		var rst domain.RatchetState
		bootstrap := env.PreKey != nil

		if bootstrap {
			if len(env.Header.DHPub) != 32 {
				return fmt.Errorf("%w: pre-key envelope without ratchet key", domain.ErrFormat)
			}
			pair, ok := account.Consume(d.Account, env.PreKey.OneTimeKeyID)
			if !ok {
				return fmt.Errorf("%w: one-time key %q not held", domain.ErrKeyExchangeFailed, env.PreKey.OneTimeKeyID)
			}
			root, err := tripledh.ResponderRoot(d.Account.Identity, pair.Priv, *env.PreKey)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrKeyExchangeFailed, err)
			}
			var senderPub domain.X25519Public
			copy(senderPub[:], env.Header.DHPub)
			rst, err = ratchet.InitAsResponder(root, d.Account.Identity.XPriv, senderPub)
			if err != nil {
				return err
			}
		} else {
			var err error
			rst, err = s.loadSession(d, peer)
			if err != nil {
				return err
			}
		}

		pt, err := ratchet.Decrypt(&rst, nil, env.Header, env.Cipher)
		if err != nil {
			return err
		}
		plaintext = pt

		if err := s.persistSession(d, peer, rst); err != nil {
			return err
		}
		if bootstrap {
			// The consumed one-time key must never be offered again.
			return s.persistAccount(d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// SendMessage encrypts plaintext for peer and publishes it as a Create
// activity carrying the ciphertext instrument.
func (s *Service) SendMessage(ctx context.Context, peer domain.ActorID, plaintext []byte) error {
	env, err := s.Encrypt(ctx, peer, plaintext)
	if err != nil {
		return err
	}
	var username string
	if err := s.st.View(func(d state.Data) error {
		username = d.Username
		return nil
	}); err != nil {
		return err
	}
	return s.publishEnvelope(ctx, username, peer, env)
}

// HasSession reports whether an active session with peer exists.
func (s *Service) HasSession(peer domain.ActorID) bool {
	err := s.st.View(func(d state.Data) error {
		_, err := s.loadSession(&d, peer)
		return err
	})
	return err == nil
}

// loadSession opens and unpickles the sealed session for peer.
func (s *Service) loadSession(d *state.Data, peer domain.ActorID) (domain.RatchetState, error) {
	rec, ok, err := s.vault.LoadVault()
	if err != nil {
		return domain.RatchetState{}, err
	}
	if !ok {
		return domain.RatchetState{}, domain.ErrNotFound
	}
	sealed, ok := rec.SealedSessions[peer.String()]
	if !ok {
		return domain.RatchetState{}, fmt.Errorf("%w: no session with %s", domain.ErrNotFound, peer)
	}
	sealer := instrument.NewSealer(d.VaultKey)
	pickle, err := sealer.Open(domain.Instrument{
		Kind:    domain.KindSession,
		Content: sealed,
		Hash:    rec.SessionHashes[peer.String()],
	})
	if err != nil {
		// A corrupted blob authenticates as tampering; the session is
		// unusable and any message for it is undecryptable.
		return domain.RatchetState{}, fmt.Errorf("%w: sealed session for %s: %v", domain.ErrDecrypt, peer, err)
	}
	return ratchet.Unpickle(pickle)
}

// persistSession re-pickles and re-seals the session, tagging the
// superseded state's hash. Called with the state lock held.
func (s *Service) persistSession(d *state.Data, peer domain.ActorID, rst domain.RatchetState) error {
	rec, ok, err := s.vault.LoadVault()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("vault disappeared during session persist")
	}

	pickle, err := ratchet.Pickle(rst)
	if err != nil {
		return err
	}
	sealer := instrument.NewSealer(d.VaultKey)
	var prior *domain.Instrument
	if h, ok := rec.SessionHashes[peer.String()]; ok {
		prior = &domain.Instrument{Hash: h}
	}
	inst, err := sealer.Seal(domain.KindSession, pickle, prior)
	if err != nil {
		return err
	}
	rec.SealedSessions[peer.String()] = inst.Content
	rec.SessionHashes[peer.String()] = inst.Hash
	return s.vault.SaveVault(rec)
}

// persistAccount re-seals the account after a one-time key consumption.
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

// publishEnvelope wraps a pairwise envelope into a Create activity and
// posts it to the outbox.
func (s *Service) publishEnvelope(ctx context.Context, username string, peer domain.ActorID, env domain.PairwiseEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	act := domain.Activity{
		Kind: domain.ActivityCreate,
		Object: domain.Note{
			To:          []domain.ActorID{peer},
			Instruments: []domain.Instrument{instrument.Wire(domain.KindVaultItem, "", payload)},
			Published:   time.Now().Unix(),
		},
	}
	return s.client.PublishActivity(ctx, username, act)
}

// Compile-time assertion that Service implements domain.SessionManager.
var _ domain.SessionManager = (*Service)(nil)
