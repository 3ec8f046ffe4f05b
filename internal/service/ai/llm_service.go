package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/ai-advisor/backend/internal/metrics"
	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
)

// ErrEmptyAnswer is returned when the provider responds without any content.
var ErrEmptyAnswer = errors.New("provider returned an empty answer")

// Options tune how a Service talks to the provider.
type Options struct {
	Provider     string
	HistoryLimit int
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// Service encapsulates calls to the completion provider.
type Service struct {
	chatModel    model.ChatModel
	chain        compose.Runnable[map[string]any, *schema.Message]
	provider     string
	historyLimit int
	timeout      time.Duration
	logger       zerolog.Logger
}

// NewService compiles the advisor chain around chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(newChatTemplate())
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		provider:     opts.Provider,
		historyLimit: historyLimit,
		timeout:      opts.Timeout,
		logger:       opts.Logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Provider names the configured backend.
func (s *Service) Provider() string {
	return s.provider
}

// HistoryLimit reports how many transcript entries accompany each question.
func (s *Service) HistoryLimit() int {
	return s.historyLimit
}

// Answer asks the provider to respond to question given the prior transcript.
func (s *Service) Answer(ctx context.Context, sessionID string, transcript []chat.Message, question string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := BuildChainInput(transcript, question, s.historyLimit)

	start := time.Now()
	response, err := s.chain.Invoke(ctx, input)
	metrics.ProviderLatency.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyAnswer
	}

	s.logger.Debug().
		Str("session_id", sessionID).
		Int("history", len(input[varHistory].([]*schema.Message))).
		Int("length", len(response.Content)).
		Dur("latency", time.Since(start)).
		Msg("generated answer")

	return response.Content, nil
}
