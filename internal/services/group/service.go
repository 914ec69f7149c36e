package group

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/instrument"
	"chorus/internal/protocol/groupratchet"
	"chorus/internal/state"
)

// Service owns the lifecycle of multi-party group sessions: joining from
// welcomes, loading cached groups, and encrypting and decrypting
// application messages. The conversation-to-group cache is consulted
// before any group-bearing activity is processed, and every operation
// that advances the group's key schedule re-persists the state.
type Service struct {
	vault  domain.VaultStore
	cache  domain.CacheStore
	client *fedi.Client
	st     *state.State
	log    *zap.Logger
}

// New returns a group service.
func New(vault domain.VaultStore, cache domain.CacheStore, client *fedi.Client, st *state.State, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{vault: vault, cache: cache, client: client, st: st, log: log}
}

// Create starts a new group session for a conversation the local actor
// initiates, persisting the state and committing the cache entry.
func (s *Service) Create(ctx context.Context, conversation domain.ConversationID) (domain.GroupID, error) {
	var gid domain.GroupID
	err := s.st.Update(func(d *state.Data) error {
		if existing, ok := d.Groups[conversation]; ok {
			return fmt.Errorf("conversation %s already bound to group %s", conversation, existing)
		}
		gst, err := groupratchet.New()
		if err != nil {
			return err
		}
		gid = gst.GroupID
		if err := s.persistGroup(d, gst); err != nil {
			return err
		}
		return s.commitCache(d, conversation, gid)
	})
	if err != nil {
		return "", err
	}
	s.log.Info("group created",
		zap.String("conversation", conversation.String()),
		zap.String("group", gid.String()))
	return gid, nil
}

// Invite seals the current group state to a member's published identity
// key and publishes the welcome alongside the conversation binding.
func (s *Service) Invite(ctx context.Context, conversation domain.ConversationID, member domain.ActorID) error {
	ikInst, err := s.client.FetchIdentityKey(ctx, member)
	if err != nil {
		return fmt.Errorf("%w: fetch identity key for %s: %v", domain.ErrKeyExchangeFailed, member, err)
	}
	if len(ikInst.Content) != 32 {
		return fmt.Errorf("%w: malformed identity key for %s", domain.ErrKeyExchangeFailed, member)
	}
	var memberPub domain.X25519Public
	copy(memberPub[:], ikInst.Content)

	var welcome []byte
	var username string
	err = s.st.Update(func(d *state.Data) error {
		username = d.Username
		gid, ok := d.Groups[conversation]
		if !ok {
			return fmt.Errorf("%w: no group for conversation %s", domain.ErrNotFound, conversation)
		}
		gst, err := s.loadGroup(*d, gid)
		if err != nil {
			return err
		}
		welcome, err = groupratchet.Welcome(gst, memberPub)
		return err
	})
	if err != nil {
		return err
	}

	welcomeInst := instrument.Wire(domain.KindWelcome, conversation, welcome)
	act := domain.Activity{
		Kind: domain.ActivityCreate,
		Object: domain.Note{
			To:           []domain.ActorID{member},
			Conversation: conversation,
			Instruments:  []domain.Instrument{welcomeInst},
			Published:    time.Now().Unix(),
		},
	}
	if err := s.client.PublishActivity(ctx, username, act); err != nil {
		return err
	}
	s.log.Info("group invite sent",
		zap.String("conversation", conversation.String()),
		zap.String("member", member.String()))
	return nil
}

// JoinFromWelcome consumes a welcome instrument and binds the
// conversation to the joined group. A conversation already in the cache
// is not rejoined: the cached group wins and the welcome is ignored,
// never a silent reset of existing state.
func (s *Service) JoinFromWelcome(conversation domain.ConversationID, welcome domain.Instrument) (domain.GroupID, error) {
	if welcome.Kind != domain.KindWelcome || len(welcome.Content) == 0 {
		return "", fmt.Errorf("%w: not a welcome instrument", domain.ErrFormat)
	}

	var gid domain.GroupID
	err := s.st.Update(func(d *state.Data) error {
		if cached, ok := d.Groups[conversation]; ok {
			s.log.Warn("ignoring welcome for known conversation",
				zap.String("conversation", conversation.String()),
				zap.String("group", cached.String()))
			gid = cached
			return nil
		}
		gst, err := groupratchet.ConsumeWelcome(d.Account.Identity.XPriv, welcome.Content)
		if err != nil {
			return err
		}
		gid = gst.GroupID
		if err := s.persistGroup(d, gst); err != nil {
			return err
		}
		// The cache entry must be committed before the accompanying
		// message (or any later item in the same pass) is processed.
		return s.commitCache(d, conversation, gid)
	})
	if err != nil {
		return "", err
	}
	return gid, nil
}

// Encrypt encrypts one application message for the conversation's group,
// advancing and re-persisting the key schedule.
func (s *Service) Encrypt(conversation domain.ConversationID, plaintext []byte) (domain.Instrument, error) {
	var inst domain.Instrument
	err := s.st.Update(func(d *state.Data) error {
		gid, ok := d.Groups[conversation]
		if !ok {
			return fmt.Errorf("%w: no group for conversation %s", domain.ErrNotFound, conversation)
		}
		gst, err := s.loadGroup(*d, gid)
		if err != nil {
			return err
		}
		msg, err := groupratchet.Encrypt(&gst, plaintext)
		if err != nil {
			return err
		}
		if err := s.persistGroup(d, gst); err != nil {
			return err
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		inst = instrument.Wire(domain.KindGroupCiphertext, conversation, payload)
		return nil
	})
	return inst, err
}

// Decrypt resolves the activity's group and decrypts its ciphertext. The
// cache is consulted first; an unknown conversation is resolved through a
// welcome or a group-id instrument, and an activity carrying neither is
// unresolvable.
func (s *Service) Decrypt(conversation domain.ConversationID, act domain.Activity) ([]byte, error) {
	insts := act.Object.Instruments

	gid, err := s.resolveGroup(conversation, insts)
	if err != nil {
		return nil, err
	}

	payload, ok := instrument.Find(insts, domain.KindGroupCiphertext)
	if !ok {
		// Older senders attach the ciphertext as a vault item beside the
		// group marker.
		payload, ok = instrument.Find(insts, domain.KindVaultItem)
	}
	if !ok {
		return nil, fmt.Errorf("%w: group activity without ciphertext", domain.ErrFormat)
	}
	var msg domain.GroupMessage
	if err := json.Unmarshal(payload.Content, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed group ciphertext", domain.ErrFormat)
	}

	var plaintext []byte
	err = s.st.Update(func(d *state.Data) error {
		gst, err := s.loadGroup(*d, gid)
		if err != nil {
			return err
		}
		pt, err := groupratchet.Decrypt(&gst, msg)
		if err != nil {
			return err
		}
		plaintext = pt
		return s.persistGroup(d, gst)
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// SendMessage encrypts plaintext for the conversation and publishes it as
// a Create activity carrying the group ciphertext and the group-id
// reference.
func (s *Service) SendMessage(ctx context.Context, conversation domain.ConversationID, plaintext []byte) error {
	inst, err := s.Encrypt(conversation, plaintext)
	if err != nil {
		return err
	}
	var username string
	var gid domain.GroupID
	if err := s.st.View(func(d state.Data) error {
		username = d.Username
		gid = d.Groups[conversation]
		return nil
	}); err != nil {
		return err
	}
	ref, err := instrument.Public(domain.KindGroupID, gid.String(), []byte(gid))
	if err != nil {
		return err
	}
	act := domain.Activity{
		Kind: domain.ActivityCreate,
		Object: domain.Note{
			Conversation: conversation,
			Instruments:  []domain.Instrument{inst, ref},
			Published:    time.Now().Unix(),
		},
	}
	return s.client.PublishActivity(ctx, username, act)
}

// resolveGroup finds the group for a conversation: cache first, then a
// welcome join, then a direct group-id reference.
func (s *Service) resolveGroup(conversation domain.ConversationID, insts []domain.Instrument) (domain.GroupID, error) {
	var cached domain.GroupID
	err := s.st.View(func(d state.Data) error {
		cached = d.Groups[conversation]
		return nil
	})
	if err != nil {
		return "", err
	}
	if cached != "" {
		return cached, nil
	}

	if welcome, ok := instrument.Find(insts, domain.KindWelcome); ok {
		return s.JoinFromWelcome(conversation, welcome)
	}
	if ref, ok := instrument.Find(insts, domain.KindGroupID); ok {
		gid := domain.GroupID(ref.ID)
		if gid == "" {
			gid = domain.GroupID(ref.Content)
		}
		if gid == "" {
			return "", fmt.Errorf("%w: empty group reference", domain.ErrFormat)
		}
		// A reference only helps if we already hold that group's state;
		// binding an unheld group would shadow a later welcome.
		rec, ok, err := s.vault.LoadVault()
		if err != nil {
			return "", err
		}
		if !ok || rec.SealedGroups[gid.String()] == nil {
			return "", fmt.Errorf("%w: reference to unheld group %s", domain.ErrGroupJoinFailed, gid)
		}
		// Bind the conversation for the rest of the pass.
		err = s.st.Update(func(d *state.Data) error {
			return s.commitCache(d, conversation, gid)
		})
		return gid, err
	}
	return "", fmt.Errorf("%w: conversation %s has neither welcome nor group reference", domain.ErrGroupJoinFailed, conversation)
}

// loadGroup opens and restores the sealed group state.
func (s *Service) loadGroup(d state.Data, gid domain.GroupID) (domain.GroupState, error) {
	rec, ok, err := s.vault.LoadVault()
	if err != nil {
		return domain.GroupState{}, err
	}
	if !ok {
		return domain.GroupState{}, domain.ErrNotFound
	}
	sealed, ok := rec.SealedGroups[gid.String()]
	if !ok {
		return domain.GroupState{}, fmt.Errorf("%w: group %s", domain.ErrNotFound, gid)
	}
	sealer := instrument.NewSealer(d.VaultKey)
	raw, err := sealer.Open(domain.Instrument{
		Kind:    domain.KindVaultItem,
		Content: sealed,
		Hash:    rec.GroupHashes[gid.String()],
	})
	if err != nil {
		return domain.GroupState{}, fmt.Errorf("%w: sealed group %s: %v", domain.ErrDecrypt, gid, err)
	}
	return groupratchet.Unmarshal(raw)
}

// persistGroup re-seals the group state after a key-schedule mutation.
// Called with the state lock held.
func (s *Service) persistGroup(d *state.Data, gst domain.GroupState) error {
	rec, ok, err := s.vault.LoadVault()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("vault disappeared during group persist")
	}
	raw, err := groupratchet.Marshal(gst)
	if err != nil {
		return err
	}
	sealer := instrument.NewSealer(d.VaultKey)
	var prior *domain.Instrument
	if h, ok := rec.GroupHashes[gst.GroupID.String()]; ok {
		prior = &domain.Instrument{Hash: h}
	}
	inst, err := sealer.Seal(domain.KindVaultItem, raw, prior)
	if err != nil {
		return err
	}
	rec.SealedGroups[gst.GroupID.String()] = inst.Content
	rec.GroupHashes[gst.GroupID.String()] = inst.Hash
	return s.vault.SaveVault(rec)
}

// commitCache updates both the in-memory mapping and its durable copy
// while the state lock is held, so no concurrent task observes one
// without the other.
func (s *Service) commitCache(d *state.Data, conversation domain.ConversationID, gid domain.GroupID) error {
	d.Groups[conversation] = gid
	snapshot := make(map[domain.ConversationID]domain.GroupID, len(d.Groups))
	for k, v := range d.Groups {
		snapshot[k] = v
	}
	return s.cache.SaveGroupCache(snapshot)
}

// Compile-time assertion that Service implements domain.GroupManager.
var _ domain.GroupManager = (*Service)(nil)
