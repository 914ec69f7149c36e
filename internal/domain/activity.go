package domain

// Boundary types for the federated object model. The surrounding client
// parses JSON-LD into these before the encryption core sees them; the core
// never touches raw ActivityPub documents.

// ActivityKind discriminates the wrapping activity.
type ActivityKind string

const (
	// ActivityCreate wraps a newly published object.
	ActivityCreate ActivityKind = "Create"
	// ActivityUpdate wraps a superseding version of an existing object.
	ActivityUpdate ActivityKind = "Update"
)

// Note is the object an activity wraps: visible content plus any number of
// instruments and an optional conversation binding.
type Note struct {
	ID           string         `json:"id,omitempty"`
	AttributedTo ActorID        `json:"attributedTo,omitempty"`
	To           []ActorID      `json:"to,omitempty"`
	Content      string         `json:"content,omitempty"`
	Conversation ConversationID `json:"conversation,omitempty"`
	Instruments  []Instrument   `json:"instrument,omitempty"`
	Published    int64          `json:"published,omitempty"`
}

// Activity is one inbox or outbox entry.
type Activity struct {
	ID     string       `json:"id,omitempty"`
	Kind   ActivityKind `json:"kind"`
	Actor  ActorID      `json:"actor,omitempty"`
	Object Note         `json:"object"`
}

// Collection is an ordered page of activities as returned by an inbox
// fetch. Order is arrival order and must be preserved by the reconciler.
type Collection struct {
	ID     string     `json:"id,omitempty"`
	Items  []Activity `json:"orderedItems"`
	Cursor string     `json:"cursor,omitempty"`
}
