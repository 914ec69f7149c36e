package inbox

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	"chorus/internal/fedi/devserver"
	"chorus/internal/services/group"
	"chorus/internal/services/identity"
	"chorus/internal/services/session"
	"chorus/internal/state"
	"chorus/internal/store"
)

const testPassphrase = "correct horse Battery-staple 9"

type client struct {
	id       domain.ActorID
	api      *fedi.Client
	st       *state.State
	sessions *session.Service
	groups   *group.Service
	inbox    *Service
}

func newClient(t *testing.T, base, name string) *client {
	t.Helper()
	dir := t.TempDir()
	vault := store.NewVaultFileStore(dir)
	cache := store.NewCacheFileStore(dir)
	api := fedi.NewClient(base, nil, nil)
	st := state.New()
	log := zaptest.NewLogger(t)

	ids := identity.New(identity.Config{Actor: domain.ActorID(name), Username: name, ServerURL: base},
		vault, api, st, log)
	_, err := ids.Register(context.Background(), testPassphrase)
	require.NoError(t, err)

	sessions := session.New(vault, api, st, log)
	groups := group.New(vault, cache, api, st, log)
	return &client{
		id:       domain.ActorID(name),
		api:      api,
		st:       st,
		sessions: sessions,
		groups:   groups,
		inbox:    New(sessions, groups, api, cache, st, log),
	}
}

func publishPlain(t *testing.T, c *client, to domain.ActorID, text string) {
	t.Helper()
	act := domain.Activity{
		Kind: domain.ActivityCreate,
		Object: domain.Note{
			To:        []domain.ActorID{to},
			Content:   text,
			Published: time.Now().Unix(),
		},
	}
	require.NoError(t, c.api.PublishActivity(context.Background(), string(c.id), act))
}

func TestReconcileMixedBatch(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()
	conv := domain.ConversationID("conv-mixed")

	alice := newClient(t, srv.URL, "alice")
	bob := newClient(t, srv.URL, "bob")

	publishPlain(t, alice, bob.id, "hello in the clear")
	require.NoError(t, alice.sessions.SendKeyExchange(ctx, bob.id))
	_, err := alice.groups.Create(ctx, conv)
	require.NoError(t, err)
	require.NoError(t, alice.groups.Invite(ctx, conv, bob.id))
	require.NoError(t, alice.groups.SendMessage(ctx, conv, []byte("group secret one")))
	require.NoError(t, alice.groups.SendMessage(ctx, conv, []byte("group secret two")))

	col, err := bob.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Len(t, col.Items, 5)

	require.Equal(t, "hello in the clear", col.Items[0].Object.Content)
	require.Equal(t, "key exchange", col.Items[1].Object.Content)
	require.Equal(t, placeholderJoined, col.Items[2].Object.Content)
	require.Equal(t, "group secret one", col.Items[3].Object.Content)
	require.Equal(t, "group secret two", col.Items[4].Object.Content)

	require.True(t, bob.sessions.HasSession(alice.id))
}

func TestReconcileIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()
	conv := domain.ConversationID("conv-again")

	alice := newClient(t, srv.URL, "alice")
	bob := newClient(t, srv.URL, "bob")

	_, err := alice.groups.Create(ctx, conv)
	require.NoError(t, err)
	require.NoError(t, alice.groups.Invite(ctx, conv, bob.id))
	require.NoError(t, alice.groups.SendMessage(ctx, conv, []byte("once only")))

	first, err := bob.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, "once only", first.Items[1].Object.Content)

	// The second pass sees the same queue plus the resealed copy. Already
	// processed ratchet messages are skipped, never replayed against the
	// session, and the resealed copy opens locally.
	second, err := bob.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Len(t, second.Items, 3)
	for _, item := range second.Items {
		require.NotEqual(t, placeholderUndecryptable, item.Object.Content)
	}
	require.Equal(t, "once only", second.Items[2].Object.Content)

	// A third pass adds nothing new except the copy of the copy chain
	// being settled; the queue length stays stable because stored copies
	// are not resealed again.
	third, err := bob.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Len(t, third.Items, 3)
}

func TestReconcileMessageBeforeWelcome(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()
	conv := domain.ConversationID("conv-late")

	alice := newClient(t, srv.URL, "alice")
	carol := newClient(t, srv.URL, "carol")

	_, err := alice.groups.Create(ctx, conv)
	require.NoError(t, err)
	// Carol enrols in the conversation before anyone hands her a key, so
	// the first message reaches her without a usable group.
	enrol := domain.Activity{
		Kind: domain.ActivityCreate,
		Object: domain.Note{
			To:           []domain.ActorID{alice.id},
			Conversation: conv,
			Content:      "count me in",
			Published:    time.Now().Unix(),
		},
	}
	require.NoError(t, carol.api.PublishActivity(ctx, string(carol.id), enrol))
	require.NoError(t, alice.groups.SendMessage(ctx, conv, []byte("early")))

	// No welcome yet: the message stays unresolved and unprocessed, to be
	// retried instead of being written off.
	col, err := carol.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Equal(t, placeholderUnresolved, col.Items[len(col.Items)-1].Object.Content)

	require.NoError(t, alice.groups.Invite(ctx, conv, carol.id))

	// Second pass: the early message still precedes the welcome in the
	// queue, so it stays unresolved while the join lands.
	col, err = carol.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Equal(t, placeholderUnresolved, col.Items[0].Object.Content)
	require.Equal(t, placeholderJoined, col.Items[1].Object.Content)

	require.NoError(t, alice.groups.SendMessage(ctx, conv, []byte("after join")))

	// Third pass: the conversation resolves. The pre-join message is
	// settled as undecryptable, history from before the key handoff, and
	// the post-join message decrypts.
	col, err = carol.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)
	require.Equal(t, placeholderUndecryptable, col.Items[0].Object.Content)
	require.Equal(t, "after join", findContent(t, col, "after join"))
}

func TestReconcileTransportFailure(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	bob := newClient(t, srv.URL, "bob")
	srv.Close()

	_, err := bob.inbox.Reconcile(context.Background(), "", "", ModeAwait)
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestSettledReportsProgressWithoutBlocking(t *testing.T) {
	srv := httptest.NewServer(devserver.New(zaptest.NewLogger(t)).Handler())
	defer srv.Close()
	ctx := context.Background()

	alice := newClient(t, srv.URL, "alice")
	bob := newClient(t, srv.URL, "bob")

	publishPlain(t, alice, bob.id, "one")
	publishPlain(t, alice, bob.id, "two")

	_, err := bob.inbox.Reconcile(ctx, "", "", ModeAwait)
	require.NoError(t, err)

	n, err := bob.inbox.Settled()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// A status read must not queue behind a commit holding the state lock.
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = bob.st.Update(func(d *state.Data) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	_, err = bob.inbox.Settled()
	require.ErrorIs(t, err, domain.ErrBusy)
	close(release)
}

func findContent(t *testing.T, col domain.Collection, want string) string {
	t.Helper()
	for _, item := range col.Items {
		if item.Object.Content == want {
			return item.Object.Content
		}
	}
	t.Fatalf("no item with content %q", want)
	return ""
}
