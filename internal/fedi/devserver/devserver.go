package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chorus/internal/domain"
)

// pageSize bounds one inbox page.
const pageSize = 50

type directory struct {
	identity domain.Instrument
	oneTime  []domain.Instrument
}

// Server is an in-memory federation instance for development and tests:
// a key directory with destructive one-time-key claims and per-actor
// ordered inbox queues. Nothing is persisted.
type Server struct {
	log *zap.Logger

	mu           sync.Mutex
	keys         map[string]*directory
	inboxes      map[string][]domain.Activity
	participants map[domain.ConversationID]map[string]bool
}

// New returns a Server ready to serve.
func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:          log,
		keys:         make(map[string]*directory),
		inboxes:      make(map[string][]domain.Activity),
		participants: make(map[domain.ConversationID]map[string]bool),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/users/{username}/outbox", s.handleOutbox)
	r.Get("/users/{username}/inbox", s.handleInbox)
	r.Post("/keys/{actor}", s.handlePublishKeys)
	r.Get("/keys/{actor}/identity", s.handleIdentity)
	r.Post("/keys/{actor}/claim", s.handleClaim)
	r.Get("/keys/{actor}/count", s.handleCount)
	return r
}

// handleOutbox routes an activity to every recipient's inbox queue. An
// activity without recipients is delivered back to the sender, which is
// how clients store resealed copies.
func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var act domain.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	if act.Actor == "" {
		act.Actor = domain.ActorID(username)
	}

	s.mu.Lock()
	recipients := make(map[string]bool)
	for _, to := range act.Object.To {
		recipients[to.String()] = true
	}
	if conv := act.Object.Conversation; conv != "" {
		// Addressing an actor inside a conversation enrols them; a
		// conversation activity without explicit recipients fans out to
		// the other participants.
		members := s.participants[conv]
		if members == nil {
			members = make(map[string]bool)
			s.participants[conv] = members
		}
		members[username] = true
		for to := range recipients {
			members[to] = true
		}
		if len(act.Object.To) == 0 {
			for m := range members {
				if m != username {
					recipients[m] = true
				}
			}
		}
	}
	if len(recipients) == 0 {
		recipients[username] = true
	}
	for to := range recipients {
		s.inboxes[to] = append(s.inboxes[to], act)
	}
	s.mu.Unlock()

	s.log.Debug("delivered activity",
		zap.String("from", username),
		zap.String("id", act.ID),
		zap.Int("recipients", len(recipients)))
	w.WriteHeader(http.StatusAccepted)
}

// handleInbox serves one ordered page of the actor's queue. The cursor
// is an offset into the queue, so a page is stable across repeated
// fetches.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	offset := 0
	if c := r.URL.Query().Get("cursor"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		offset = n
	}

	s.mu.Lock()
	queue := s.inboxes[username]
	if offset > len(queue) {
		offset = len(queue)
	}
	end := offset + pageSize
	if end > len(queue) {
		end = len(queue)
	}
	items := make([]domain.Activity, end-offset)
	copy(items, queue[offset:end])
	s.mu.Unlock()

	col := domain.Collection{ID: "inbox/" + username, Items: items}
	if end < len(queue) {
		col.Cursor = strconv.Itoa(end)
	}
	writeJSON(w, col)
}

// handlePublishKeys accepts a batch of key-material instruments.
func (s *Server) handlePublishKeys(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")
	var insts []domain.Instrument
	if err := json.NewDecoder(r.Body).Decode(&insts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	dir := s.keys[actor]
	if dir == nil {
		dir = &directory{}
		s.keys[actor] = dir
	}
	for _, inst := range insts {
		switch inst.Kind {
		case domain.KindIdentityKey:
			dir.identity = inst
		case domain.KindOneTimeKey:
			dir.oneTime = append(dir.oneTime, inst)
		}
	}
	s.mu.Unlock()

	s.log.Debug("published keys", zap.String("actor", actor), zap.Int("batch", len(insts)))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")

	s.mu.Lock()
	dir := s.keys[actor]
	var inst domain.Instrument
	if dir != nil {
		inst = dir.identity
	}
	s.mu.Unlock()

	if inst.Kind != domain.KindIdentityKey {
		http.Error(w, "unknown actor", http.StatusNotFound)
		return
	}
	writeJSON(w, inst)
}

// handleClaim hands out one one-time key and deletes it. A claimed key
// is never served twice.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")

	s.mu.Lock()
	dir := s.keys[actor]
	var inst domain.Instrument
	var ok bool
	if dir != nil && len(dir.oneTime) > 0 {
		inst, ok = dir.oneTime[0], true
		dir.oneTime = dir.oneTime[1:]
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no one-time keys left", http.StatusGone)
		return
	}
	s.log.Debug("claimed one-time key", zap.String("actor", actor), zap.String("id", inst.ID))
	writeJSON(w, inst)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")

	s.mu.Lock()
	n := 0
	if dir := s.keys[actor]; dir != nil {
		n = len(dir.oneTime)
	}
	s.mu.Unlock()

	writeJSON(w, struct {
		Count int `json:"count"`
	}{Count: n})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/activity+json")
	_ = json.NewEncoder(w).Encode(v)
}
