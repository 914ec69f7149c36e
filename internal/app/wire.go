package app

import (
	"net/http"

	"go.uber.org/zap"

	"chorus/internal/domain"
	"chorus/internal/fedi"
	groupsvc "chorus/internal/services/group"
	identitysvc "chorus/internal/services/identity"
	inboxsvc "chorus/internal/services/inbox"
	sessionsvc "chorus/internal/services/session"
	"chorus/internal/state"
	"chorus/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Identity *identitysvc.Service
	Sessions *sessionsvc.Service
	Groups   *groupsvc.Service
	Inbox    *inboxsvc.Service
	Client   *fedi.Client
	State    *state.State
	Log      *zap.Logger
	HTTP     *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	// File-based stores
	vaultStore := store.NewVaultFileStore(cfg.Home)
	cacheStore := store.NewCacheFileStore(cfg.Home)

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	client := fedi.NewClient(cfg.ServerURL, httpClient, nil)
	st := state.New()

	// Rehydrate reconciliation metadata so a restart neither rejoins
	// known conversations nor reprocesses settled inbox items.
	groupCache, err := cacheStore.LoadGroupCache()
	if err != nil {
		return nil, err
	}
	processed, err := cacheStore.LoadProcessed()
	if err != nil {
		return nil, err
	}
	_ = st.Update(func(d *state.Data) error {
		for conv, gid := range groupCache {
			d.Groups[conv] = gid
		}
		for id, done := range processed {
			d.Processed[id] = done
		}
		return nil
	})

	// High-level services
	idCfg := identitysvc.Config{
		Actor:     domain.ActorID(cfg.Actor),
		Username:  cfg.Username,
		ServerURL: cfg.ServerURL,
	}
	identity := identitysvc.New(idCfg, vaultStore, client, st, log)
	sessions := sessionsvc.New(vaultStore, client, st, log)
	groups := groupsvc.New(vaultStore, cacheStore, client, st, log)
	inbox := inboxsvc.New(sessions, groups, client, cacheStore, st, log)

	return &Wire{
		Identity: identity,
		Sessions: sessions,
		Groups:   groups,
		Inbox:    inbox,
		Client:   client,
		State:    st,
		Log:      log,
		HTTP:     httpClient,
	}, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
