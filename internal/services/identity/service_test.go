package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/fedi/devserver"
	"chorus/internal/state"
	"chorus/internal/store"
)

const testPassphrase = "correct horse Battery-staple 9"

type fixture struct {
	svc    *Service
	client *fedi.Client
	vault  *store.VaultFileStore
	st     *state.State
	actor  domain.ActorID
	dir    string
}

func newFixture(t *testing.T, base, name, dir string) *fixture {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	vault := store.NewVaultFileStore(dir)
	client := fedi.NewClient(base, nil, nil)
	st := state.New()
	cfg := Config{Actor: domain.ActorID(name), Username: name, ServerURL: base}
	return &fixture{
		svc:    New(cfg, vault, client, st, zaptest.NewLogger(t)),
		client: client,
		vault:  vault,
		st:     st,
		actor:  domain.ActorID(name),
		dir:    dir,
	}
}

func TestRegisterPublishesIdentityAndOneTimeKeys(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	f := newFixture(t, srv.URL, "alice", "")
	fp, err := f.svc.Register(ctx, testPassphrase)
	require.NoError(t, err)
	require.NotEmpty(t, fp)
	require.True(t, f.st.Authenticated())

	_, ok, err := f.vault.LoadVault()
	require.NoError(t, err)
	require.True(t, ok)

	ik, err := f.client.FetchIdentityKey(ctx, f.actor)
	require.NoError(t, err)
	require.Equal(t, domain.KindIdentityKey, ik.Kind)
	require.Len(t, ik.Content, 32)

	n, err := f.client.OneTimeKeyCount(ctx, f.actor)
	require.NoError(t, err)
	require.Equal(t, initialOneTimeKeys, n)
}

func TestIdentityKeyMatchesPublished(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	f := newFixture(t, srv.URL, "alice", "")
	_, err := f.svc.Register(ctx, testPassphrase)
	require.NoError(t, err)

	enc, err := f.svc.IdentityKey()
	require.NoError(t, err)

	ik, err := f.client.FetchIdentityKey(ctx, f.actor)
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(ik.Content), enc)
}

func TestRegisterRejectsWeakPassphrase(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()

	f := newFixture(t, srv.URL, "alice", "")
	_, err := f.svc.Register(context.Background(), "password")
	require.ErrorIs(t, err, ErrWeakPassphrase)
}

func TestRegisterRefusesExistingVault(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	f := newFixture(t, srv.URL, "alice", "")
	_, err := f.svc.Register(ctx, testPassphrase)
	require.NoError(t, err)

	again := newFixture(t, srv.URL, "alice", f.dir)
	_, err = again.svc.Register(ctx, testPassphrase)
	require.Error(t, err)
}

func TestUnlockVerifiesPassphrase(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	f := newFixture(t, srv.URL, "alice", "")
	registered, err := f.svc.Register(ctx, testPassphrase)
	require.NoError(t, err)

	// Fresh process over the same vault directory.
	reopened := newFixture(t, srv.URL, "alice", f.dir)
	err = reopened.svc.Unlock(ctx, "Wrong passphrase entirely 123!")
	require.ErrorIs(t, err, domain.ErrAuthenticationFailure)
	require.False(t, reopened.st.Authenticated())

	require.NoError(t, reopened.svc.Unlock(ctx, testPassphrase))
	require.True(t, reopened.st.Authenticated())

	fp, err := reopened.svc.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, registered, fp)
}

func TestReplenishTopsUpBelowThreshold(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	f := newFixture(t, srv.URL, "alice", "")
	_, err := f.svc.Register(ctx, testPassphrase)
	require.NoError(t, err)

	published, err := f.svc.Replenish(ctx, DefaultLowWater)
	require.NoError(t, err)
	require.False(t, published, "a full pool must not be topped up")

	for i := 0; i < 5; i++ {
		_, err := f.client.ClaimOneTimeKey(ctx, f.actor)
		require.NoError(t, err)
	}

	published, err = f.svc.Replenish(ctx, DefaultLowWater)
	require.NoError(t, err)
	require.True(t, published)

	n, err := f.client.OneTimeKeyCount(ctx, f.actor)
	require.NoError(t, err)
	require.Equal(t, initialOneTimeKeys-5+replenishBatch, n)
}

func TestReplenishSurfacesTransportFailure(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", "alice", "")
	_, err := f.svc.Replenish(context.Background(), DefaultLowWater)
	require.True(t, errors.Is(err, domain.ErrTransport))
}
