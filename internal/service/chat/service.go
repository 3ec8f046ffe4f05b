package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/ai-advisor/backend/internal/metrics"
	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/realtime"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/transcript"
)

// PlaceholderAnswer is recorded when no provider credential is configured.
const PlaceholderAnswer = "I'm sorry, but the OpenAI API key is not configured."

// ProviderErrorPrefix starts every answer produced from a failed provider call.
const ProviderErrorPrefix = "Error: "

var (
	ErrQuestionRequired = errors.New("question required")
	ErrContentRequired  = errors.New("content required")
)

// Answerer produces an answer for question given the session history that
// preceded it.
type Answerer interface {
	Answer(ctx context.Context, sessionID string, history []chat.Message, question string) (string, error)
}

// Result is the outcome of one chat exchange.
type Result struct {
	Answer string `json:"answer"`
	Count  int    `json:"count"`
}

// Service coordinates the transcript store, the provider and realtime mirrors.
type Service struct {
	store    *transcript.Store
	answerer Answerer
	broker   realtime.Broker
	logger   zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithAnswerer enables real answers. Without it every question receives PlaceholderAnswer.
func WithAnswerer(a Answerer) Option {
	return func(s *Service) { s.answerer = a }
}

// WithBroker publishes transcript changes to realtime subscribers.
func WithBroker(b realtime.Broker) Option {
	return func(s *Service) { s.broker = b }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires a chat service around store.
func NewService(store *transcript.Store, opts ...Option) *Service {
	s := &Service{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "chat").Logger()
	return s
}

// Configured reports whether questions are forwarded to a provider.
func (s *Service) Configured() bool {
	return s.answerer != nil
}

// Ask records question, obtains an answer and records it too. Provider
// failures are folded into the answer text and never returned as errors.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, ErrQuestionRequired
	}
	sessionID = chat.NormalizeSessionID(sessionID)

	history := s.store.Get(ctx, sessionID)

	userMsg, _ := s.store.Append(ctx, sessionID, chat.Message{Role: chat.RoleUser, Content: question})
	s.publish(ctx, realtime.MessageEvent(sessionID, userMsg))

	answer, outcome := s.answer(ctx, sessionID, history, question)

	assistantMsg, count := s.store.Append(ctx, sessionID, chat.Message{Role: chat.RoleAssistant, Content: answer})
	s.publish(ctx, realtime.MessageEvent(sessionID, assistantMsg))

	metrics.ChatExchanges.WithLabelValues(outcome).Inc()
	s.logger.Info().
		Str("session_id", sessionID).
		Str("outcome", outcome).
		Int("count", count).
		Msg("chat exchange recorded")

	return Result{Answer: answer, Count: count}, nil
}

func (s *Service) answer(ctx context.Context, sessionID string, history []chat.Message, question string) (string, string) {
	if s.answerer == nil {
		return PlaceholderAnswer, metrics.OutcomePlaceholder
	}

	answer, err := s.answerer.Answer(ctx, sessionID, history, question)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("provider call failed")
		return ProviderErrorPrefix + err.Error(), metrics.OutcomeProviderError
	}
	return answer, metrics.OutcomeAnswered
}

// Transcript returns the session transcript, empty when unknown.
func (s *Service) Transcript(ctx context.Context, sessionID string) []chat.Message {
	return s.store.Get(ctx, chat.NormalizeSessionID(sessionID))
}

// Clear removes the session transcript and notifies mirrors. It always succeeds
// and returns the normalised session id.
func (s *Service) Clear(ctx context.Context, sessionID string) string {
	sessionID = chat.NormalizeSessionID(sessionID)
	s.store.Clear(ctx, sessionID)
	s.publish(ctx, realtime.ClearEvent(sessionID))
	metrics.TranscriptsCleared.Inc()
	return sessionID
}

// Push relays a message to mirrors without recording it. Without a broker the
// message has nowhere to go and realtime.ErrClosed is returned.
func (s *Service) Push(ctx context.Context, sessionID string, role chat.Role, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrContentRequired
	}
	if role == "" {
		role = chat.RoleUser
	}
	if s.broker == nil {
		return realtime.ErrClosed
	}

	event := realtime.MessageEvent(chat.NormalizeSessionID(sessionID), chat.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	return s.broker.Publish(context.WithoutCancel(ctx), event)
}

// Subscribe opens a realtime feed of the session transcript.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan realtime.Event, func(), error) {
	if s.broker == nil {
		return nil, nil, realtime.ErrClosed
	}
	return s.broker.Subscribe(ctx, chat.NormalizeSessionID(sessionID))
}

// Sessions lists sessions holding a transcript.
func (s *Service) Sessions(ctx context.Context) []string {
	return s.store.Sessions(ctx)
}

func (s *Service) publish(ctx context.Context, event realtime.Event) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn().Err(err).Str("session_id", event.SessionID).Str("event", event.Type).Msg("realtime publish failed")
	}
}
