package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/fedi/devserver"
	"chorus/internal/instrument"
	"chorus/internal/services/identity"
	"chorus/internal/state"
	"chorus/internal/store"
)

const testPassphrase = "correct horse Battery-staple 9"

type party struct {
	id       domain.ActorID
	client   *fedi.Client
	vault    *store.VaultFileStore
	st       *state.State
	sessions *Service
}

func newParty(t *testing.T, base, name string) *party {
	t.Helper()
	dir := t.TempDir()
	vault := store.NewVaultFileStore(dir)
	client := fedi.NewClient(base, nil, nil)
	st := state.New()
	ids := identity.New(identity.Config{Actor: domain.ActorID(name), Username: name, ServerURL: base},
		vault, client, st, zaptest.NewLogger(t))
	_, err := ids.Register(context.Background(), testPassphrase)
	require.NoError(t, err)
	return &party{
		id:       domain.ActorID(name),
		client:   client,
		vault:    vault,
		st:       st,
		sessions: New(vault, client, st, zaptest.NewLogger(t)),
	}
}

// envelopesFor drains the party's inbox and returns the pairwise
// envelopes it contains, in arrival order.
func envelopesFor(t *testing.T, p *party) []domain.PairwiseEnvelope {
	t.Helper()
	col, err := p.client.FetchInbox(context.Background(), string(p.id), "", "")
	require.NoError(t, err)
	var envs []domain.PairwiseEnvelope
	for _, act := range col.Items {
		inst, ok := instrument.Find(act.Object.Instruments, domain.KindVaultItem)
		if !ok {
			continue
		}
		var env domain.PairwiseEnvelope
		require.NoError(t, json.Unmarshal(inst.Content, &env))
		envs = append(envs, env)
	}
	return envs
}

func TestKeyExchangeEstablishesBothSides(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	alice := newParty(t, srv.URL, "alice")
	bob := newParty(t, srv.URL, "bob")

	require.False(t, alice.sessions.HasSession(bob.id))
	require.NoError(t, alice.sessions.SendKeyExchange(ctx, bob.id))
	require.True(t, alice.sessions.HasSession(bob.id))

	envs := envelopesFor(t, bob)
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].PreKey)

	pt, err := bob.sessions.Decrypt(ctx, alice.id, envs[0])
	require.NoError(t, err)
	require.Equal(t, "key exchange", string(pt))
	require.True(t, bob.sessions.HasSession(alice.id))

	// Messages then flow in both directions over the same session.
	reply, err := bob.sessions.Encrypt(ctx, alice.id, []byte("hello alice"))
	require.NoError(t, err)
	require.Nil(t, reply.PreKey)
	got, err := alice.sessions.Decrypt(ctx, bob.id, reply)
	require.NoError(t, err)
	require.Equal(t, "hello alice", string(got))

	second, err := alice.sessions.Encrypt(ctx, bob.id, []byte("hello bob"))
	require.NoError(t, err)
	got, err = bob.sessions.Decrypt(ctx, alice.id, second)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(got))
}

func TestConcurrentEstablishmentsConsumeDistinctKeys(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	alice := newParty(t, srv.URL, "alice")
	carol := newParty(t, srv.URL, "carol")
	bob := newParty(t, srv.URL, "bob")

	require.NoError(t, alice.sessions.SendKeyExchange(ctx, bob.id))
	require.NoError(t, carol.sessions.SendKeyExchange(ctx, bob.id))

	envs := envelopesFor(t, bob)
	require.Len(t, envs, 2)
	require.NotEqual(t, envs[0].PreKey.OneTimeKeyID, envs[1].PreKey.OneTimeKeyID,
		"two establishments must never share a one-time key")

	_, err := bob.sessions.Decrypt(ctx, alice.id, envs[0])
	require.NoError(t, err)
	_, err = bob.sessions.Decrypt(ctx, carol.id, envs[1])
	require.NoError(t, err)
}

func TestKeyExchangeFailsWhenPoolExhausted(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	alice := newParty(t, srv.URL, "alice")
	bob := newParty(t, srv.URL, "bob")

	n, err := alice.client.OneTimeKeyCount(ctx, bob.id)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := alice.client.ClaimOneTimeKey(ctx, bob.id)
		require.NoError(t, err)
	}

	err = alice.sessions.SendKeyExchange(ctx, bob.id)
	require.ErrorIs(t, err, domain.ErrKeyExchangeFailed)
	require.False(t, alice.sessions.HasSession(bob.id))
}

func TestPreKeyReplayRejected(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	alice := newParty(t, srv.URL, "alice")
	bob := newParty(t, srv.URL, "bob")

	require.NoError(t, alice.sessions.SendKeyExchange(ctx, bob.id))
	envs := envelopesFor(t, bob)
	require.Len(t, envs, 1)

	_, err := bob.sessions.Decrypt(ctx, alice.id, envs[0])
	require.NoError(t, err)

	// The referenced one-time key was destroyed on first use.
	_, err = bob.sessions.Decrypt(ctx, alice.id, envs[0])
	require.ErrorIs(t, err, domain.ErrKeyExchangeFailed)
}

func TestCorruptedSessionBlobSurfacesDecryptError(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	alice := newParty(t, srv.URL, "alice")
	bob := newParty(t, srv.URL, "bob")
	require.NoError(t, alice.sessions.SendKeyExchange(ctx, bob.id))

	rec, ok, err := alice.vault.LoadVault()
	require.NoError(t, err)
	require.True(t, ok)
	blob := rec.SealedSessions[string(bob.id)]
	require.NotEmpty(t, blob)
	blob[len(blob)/2] ^= 0xff
	require.NoError(t, alice.vault.SaveVault(rec))

	_, err = alice.sessions.Encrypt(ctx, bob.id, []byte("doomed"))
	require.ErrorIs(t, err, domain.ErrDecrypt)
}
