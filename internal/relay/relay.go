// Package relay consumes a live chat stream on behalf of a connected client
// and maintains the transcript view: the user's turn appears immediately, the
// assistant's reply grows as a draft that each cumulative snapshot replaces,
// and the final text is committed as an immutable entry once the stream
// closes. Handlers embed a Relay per chat submission; tests drive it directly.
package relay

import (
	"context"
	"sync"

	"github.com/fitbot/fitbot-backend/internal/domain"
	"github.com/fitbot/fitbot-backend/internal/provider"
)

// submitApology is committed as the assistant turn when the submission itself
// is rejected before any fragment arrives.
const submitApology = "Lo siento, no se pudo enviar tu mensaje. Por favor inténtalo de nuevo."

// Entry is one committed transcript line.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Submitter starts one chat turn and hands back the live stream. ChatService
// satisfies this.
type Submitter interface {
	SendMessage(ctx context.Context, userID, conversationID, text string) (*domain.Conversation, *provider.Stream, error)
}

// Relay owns the transcript view for a sequence of chat submissions.
type Relay struct {
	submitter Submitter

	mu      sync.Mutex
	entries []Entry
	draft   string
	drafted bool

	// OnDraft, when set, observes every draft replacement. Called without
	// the lock held.
	OnDraft func(draft string)
}

// New constructs a Relay on top of a Submitter.
func New(submitter Submitter) *Relay {
	return &Relay{submitter: submitter}
}

// Submit sends one user message and blocks until the reply stream completes.
// The user's own turn is committed optimistically before the send, so it is
// visible even when the submission fails. It returns the conversation the
// turn landed in, or nil alongside the error when the send was rejected.
func (r *Relay) Submit(ctx context.Context, userID, conversationID, text string) (*domain.Conversation, error) {
	r.commit(Entry{Role: domain.RoleUser, Content: text})

	conv, stream, err := r.submitter.SendMessage(ctx, userID, conversationID, text)
	if err != nil {
		r.commit(Entry{Role: domain.RoleAssistant, Content: submitApology})
		return nil, err
	}

	for snap := range stream.Snapshots() {
		r.replaceDraft(snap)
	}

	final := stream.Final()
	if final == "" {
		// Stream closed without a single fragment.
		final = submitApology
	}
	r.clearDraft()
	r.commit(Entry{Role: domain.RoleAssistant, Content: final})
	return conv, nil
}

// Draft returns the in-flight assistant text and whether one exists.
func (r *Relay) Draft() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft, r.drafted
}

// Transcript returns a copy of the committed entries in order.
func (r *Relay) Transcript() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Relay) commit(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *Relay) replaceDraft(snapshot string) {
	r.mu.Lock()
	r.draft = snapshot
	r.drafted = true
	cb := r.OnDraft
	r.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

func (r *Relay) clearDraft() {
	r.mu.Lock()
	r.draft = ""
	r.drafted = false
	r.mu.Unlock()
}
