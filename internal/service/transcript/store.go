package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
)

// Store keeps per-session transcripts in memory for the lifetime of the process.
type Store struct {
	mu          sync.RWMutex
	messages    map[string][]chat.Message
	maxMessages int
}

// Option customises a Store.
type Option func(*Store)

// WithMaxMessages caps every transcript at n entries, dropping the oldest first.
// Zero or a negative value leaves transcripts unbounded.
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// NewStore returns an empty transcript store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		messages: make(map[string][]chat.Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds message to the end of the session transcript, creating it when absent.
// It returns the stored message and the transcript length after the append.
func (s *Store) Append(_ context.Context, sessionID string, message chat.Message) (chat.Message, int) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	messages := append(s.messages[sessionID], message)
	if s.maxMessages > 0 && len(messages) > s.maxMessages {
		trimmed := make([]chat.Message, s.maxMessages)
		copy(trimmed, messages[len(messages)-s.maxMessages:])
		messages = trimmed
	}
	s.messages[sessionID] = messages

	return message, len(messages)
}

// Get returns a copy of the session transcript. Unknown sessions yield an empty slice.
func (s *Store) Get(_ context.Context, sessionID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[sessionID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied
}

// Clear drops the session transcript. Clearing an unknown session is a no-op.
func (s *Store) Clear(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.messages, sessionID)
	s.mu.Unlock()
}

// Sessions lists the ids of all sessions that currently hold a transcript.
func (s *Store) Sessions(_ context.Context) []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
