package state

import (
	"sync"

	"chorus/internal/domain"
)

// Data is the authoritative in-memory state of the client: the
// authenticated actor, the derived vault key, the decrypted account, and
// the reconciliation caches. There is exactly one copy, owned by State;
// nothing here is reachable except under the lock.
type Data struct {
	Actor     domain.ActorID
	Username  string
	ServerURL string

	VaultKey []byte
	Salt     []byte
	Account  *domain.Account

	// Groups maps conversations to joined group sessions. Committed under
	// the lock before the task that computed an entry can yield, so a
	// concurrent reader never observes a torn mapping.
	Groups map[domain.ConversationID]domain.GroupID

	// Processed tracks inbox item ids already reconciled.
	Processed map[string]bool
}

// State guards Data with a mutex. Readers that must not block use TryView
// and get a typed outcome: ErrBusy under contention is distinct from
// ErrUnauthenticated, so callers retry instead of silently degrading to
// empty state. Callers needing strong consistency use Update or View and
// accept serializing with in-flight mutators.
type State struct {
	mu sync.Mutex
	d  Data
}

// New returns an empty, unauthenticated State.
func New() *State {
	return &State{d: Data{
		Groups:    make(map[domain.ConversationID]domain.GroupID),
		Processed: make(map[string]bool),
	}}
}

// Authenticate installs the actor context, vault key, salt and decrypted
// account after a successful vault open.
func (s *State) Authenticate(actor domain.ActorID, username, serverURL string, key, salt []byte, account *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Actor = actor
	s.d.Username = username
	s.d.ServerURL = serverURL
	s.d.VaultKey = key
	s.d.Salt = salt
	s.d.Account = account
}

// Update runs f with exclusive, blocking access to the state. Mutations
// are visible to every later acquisition; f must not retain references to
// Data past its return.
func (s *State) Update(f func(*Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(&s.d)
}

// View runs f with blocking read access. ErrUnauthenticated if no vault
// key is loaded.
func (s *State) View(f func(Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d.VaultKey == nil {
		return domain.ErrUnauthenticated
	}
	return f(s.d)
}

// TryView runs f with non-blocking read access. Contention returns
// ErrBusy; a missing vault key returns ErrUnauthenticated. The two are
// never conflated.
func (s *State) TryView(f func(Data) error) error {
	if !s.mu.TryLock() {
		return domain.ErrBusy
	}
	defer s.mu.Unlock()
	if s.d.VaultKey == nil {
		return domain.ErrUnauthenticated
	}
	return f(s.d)
}

// Authenticated reports whether a vault key is currently loaded.
func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.VaultKey != nil
}
