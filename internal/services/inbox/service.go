package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/instrument"
	"chorus/internal/state"
)

// Mode is the reconciler's scheduling policy for the reseal-republish
// step: an explicit parameter, not an implicit branch on the view.
type Mode int

const (
	// ModeAwait stores the resealed copies before Reconcile returns.
	ModeAwait Mode = iota
	// ModeBackground returns the collection immediately and completes the
	// reseal publication asynchronously.
	ModeBackground
)

// Placeholders rendered for items that did not decrypt. Undecryptable or
// unresolved items stay in the collection; they are never silently
// dropped.
const (
	placeholderUndecryptable = "[undecryptable]"
	placeholderUnresolved    = "[unresolved conversation]"
	placeholderJoined        = "[conversation key received]"
)

// Service reconciles the federated inbox against the session managers:
// it classifies each encrypted activity as pairwise or group, drives the
// appropriate manager, and republishes the plaintext resealed under the
// local vault key.
type Service struct {
	sessions domain.SessionManager
	groups   domain.GroupManager
	client   *fedi.Client
	cache    domain.CacheStore
	st       *state.State
	log      *zap.Logger

	// mu serializes reconciliation passes; overlapping passes over the
	// same peers and conversations are not allowed.
	mu sync.Mutex
}

// New returns an inbox reconciler.
func New(sessions domain.SessionManager, groups domain.GroupManager, client *fedi.Client, cache domain.CacheStore, st *state.State, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{sessions: sessions, groups: groups, client: client, cache: cache, st: st, log: log}
}

// Reconcile runs one reconciliation pass over an inbox page and returns
// the partially decrypted collection for display. Items are processed in
// arrival order, so a welcome for a conversation is handled before any
// later message of the same conversation in the batch. Progress already
// persisted survives a mid-pass failure.
func (s *Service) Reconcile(ctx context.Context, view, cursor string, mode Mode) (domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var username string
	if err := s.st.View(func(d state.Data) error {
		username = d.Username
		return nil
	}); err != nil {
		return domain.Collection{}, err
	}

	col, err := s.client.FetchInbox(ctx, username, view, cursor)
	if err != nil {
		return domain.Collection{}, err
	}

	var (
		resealed []domain.Instrument
		settled  []string // terminal this pass regardless of publication
		pending  []string // settled only once the resealed copy is stored
	)

	out := make([]domain.Activity, 0, len(col.Items))
	for _, act := range col.Items {
		item := act

		var seen bool
		_ = s.st.View(func(d state.Data) error {
			seen = item.ID != "" && d.Processed[item.ID]
			return nil
		})
		if seen {
			out = append(out, item)
			continue
		}

		// A vault-sealed item carries a content hash; wire envelopes do
		// not. Those are our own resealed copies coming back, opened
		// locally rather than run through a session.
		if vi, ok := instrument.Find(item.Object.Instruments, domain.KindVaultItem); ok && vi.Hash != "" {
			pt, err := s.openSealed(vi)
			if err != nil {
				item.Object.Content = placeholderUndecryptable
				s.log.Warn("stored item unreadable", zap.String("item", item.ID), zap.Error(err))
			} else {
				item.Object.Content = string(pt)
			}
			settled = append(settled, item.ID)
			out = append(out, item)
			continue
		}

		class := instrument.Classify(item.Object.Instruments)
		switch class {
		case instrument.ClassPlain:
			settled = append(settled, item.ID)
			out = append(out, item)
			continue

		case instrument.ClassPairwise:
			pt, err := s.decryptPairwise(ctx, item)
			if err != nil {
				item.Object.Content = placeholderUndecryptable
				settled = append(settled, item.ID)
				s.log.Warn("pairwise item undecryptable",
					zap.String("item", item.ID),
					zap.String("actor", item.Actor.String()),
					zap.Error(err))
				out = append(out, item)
				continue
			}
			inst, err := s.reseal(pt)
			if err != nil {
				return domain.Collection{Items: out}, err
			}
			item.Object.Content = string(pt)
			resealed = append(resealed, inst)
			pending = append(pending, item.ID)
			out = append(out, item)

		case instrument.ClassGroup:
			if welcome, ok := welcomeOnly(item.Object.Instruments); ok {
				if _, err := s.groups.JoinFromWelcome(item.Object.Conversation, welcome); err != nil {
					item.Object.Content = placeholderUnresolved
					s.log.Warn("welcome rejected",
						zap.String("item", item.ID),
						zap.Error(err))
					out = append(out, item)
					continue
				}
				item.Object.Content = placeholderJoined
				settled = append(settled, item.ID)
				out = append(out, item)
				continue
			}
			pt, err := s.groups.Decrypt(item.Object.Conversation, item)
			if err != nil {
				if errors.Is(err, domain.ErrGroupJoinFailed) {
					// A corrected welcome may arrive; leave the item
					// unprocessed so the next pass retries it.
					item.Object.Content = placeholderUnresolved
					s.log.Warn("group item unresolved this pass",
						zap.String("item", item.ID),
						zap.String("conversation", item.Object.Conversation.String()),
						zap.Error(err))
				} else {
					item.Object.Content = placeholderUndecryptable
					settled = append(settled, item.ID)
					s.log.Warn("group item undecryptable",
						zap.String("item", item.ID),
						zap.Error(err))
				}
				out = append(out, item)
				continue
			}
			inst, err := s.reseal(pt)
			if err != nil {
				return domain.Collection{Items: out}, err
			}
			item.Object.Content = string(pt)
			resealed = append(resealed, inst)
			pending = append(pending, item.ID)
			out = append(out, item)
		}
	}

	// Commit what is terminal regardless of the republish step.
	if err := s.markProcessed(settled); err != nil {
		return domain.Collection{Items: out}, err
	}

	result := domain.Collection{ID: col.ID, Items: out, Cursor: col.Cursor}
	if len(resealed) == 0 {
		return result, nil
	}

	publish := func(ctx context.Context) error {
		if err := s.republish(ctx, username, resealed); err != nil {
			return err
		}
		// Only a durably stored resealed copy completes reconciliation.
		return s.markProcessed(pending)
	}

	if mode == ModeBackground {
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := publish(bg); err != nil {
				s.log.Error("background reseal publication failed", zap.Error(err))
			}
		}()
		return result, nil
	}
	if err := publish(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// welcomeOnly reports whether the instruments form a pure key-handoff
// activity: a welcome with no ciphertext to decrypt alongside it.
func welcomeOnly(insts []domain.Instrument) (domain.Instrument, bool) {
	welcome, ok := instrument.Find(insts, domain.KindWelcome)
	if !ok {
		return domain.Instrument{}, false
	}
	if _, hasCT := instrument.Find(insts, domain.KindGroupCiphertext); hasCT {
		return domain.Instrument{}, false
	}
	if _, hasVI := instrument.Find(insts, domain.KindVaultItem); hasVI {
		return domain.Instrument{}, false
	}
	return welcome, true
}

// decryptPairwise unpacks the ratchet envelope from a vault-item
// instrument and drives the session manager.
func (s *Service) decryptPairwise(ctx context.Context, act domain.Activity) ([]byte, error) {
	item, ok := instrument.Find(act.Object.Instruments, domain.KindVaultItem)
	if !ok {
		return nil, fmt.Errorf("%w: pairwise activity without payload", domain.ErrFormat)
	}
	var env domain.PairwiseEnvelope
	if err := json.Unmarshal(item.Content, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed pairwise envelope", domain.ErrFormat)
	}
	return s.sessions.Decrypt(ctx, act.Actor, env)
}

// openSealed opens a vault-sealed instrument with the local vault key.
func (s *Service) openSealed(inst domain.Instrument) ([]byte, error) {
	var pt []byte
	err := s.st.View(func(d state.Data) error {
		sealer := instrument.NewSealer(d.VaultKey)
		var err error
		pt, err = sealer.Open(inst)
		return err
	})
	return pt, err
}

// reseal seals decrypted plaintext under the local vault key so at-rest
// storage never holds the network plaintext.
func (s *Service) reseal(plaintext []byte) (domain.Instrument, error) {
	var inst domain.Instrument
	err := s.st.View(func(d state.Data) error {
		sealer := instrument.NewSealer(d.VaultKey)
		var err error
		inst, err = sealer.Seal(domain.KindVaultItem, plaintext, nil)
		return err
	})
	return inst, err
}

// republish posts the resealed batch back to the server.
func (s *Service) republish(ctx context.Context, username string, insts []domain.Instrument) error {
	act := domain.Activity{
		Kind: domain.ActivityUpdate,
		Object: domain.Note{
			Instruments: insts,
			Published:   time.Now().Unix(),
		},
	}
	return s.client.PublishActivity(ctx, username, act)
}

// Settled reports how many inbox items have been settled. The read is
// non-blocking: a status check during a background publish gets ErrBusy
// rather than queueing behind the commit that holds the state lock.
func (s *Service) Settled() (int, error) {
	var n int
	err := s.st.TryView(func(d state.Data) error {
		n = len(d.Processed)
		return nil
	})
	return n, err
}

// markProcessed commits item ids to the processed set, in memory and
// durably, under one lock acquisition.
func (s *Service) markProcessed(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.st.Update(func(d *state.Data) error {
		for _, id := range ids {
			if id != "" {
				d.Processed[id] = true
			}
		}
		snapshot := make(map[string]bool, len(d.Processed))
		for k, v := range d.Processed {
			snapshot[k] = v
		}
		return s.cache.SaveProcessed(snapshot)
	})
}
