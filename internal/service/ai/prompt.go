package ai

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
)

// SystemPrompt frames every provider call.
const SystemPrompt = "You are an academic advisor for McNeese State University. " +
	"Provide helpful degree plan advice. " +
	"Always cite sources and warn to verify with an official advisor."

// DefaultHistoryLimit is how many prior transcript entries accompany a question.
const DefaultHistoryLimit = 4

// Template variable names shared by the chat template and BuildChainInput.
const (
	varSystem  = "system"
	varHistory = "history"
	varQuery   = "query"
)

func newChatTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{"+varSystem+"}"),
		schema.MessagesPlaceholder(varHistory, true),
		schema.UserMessage("{"+varQuery+"}"),
	)
}

// BuildHistory converts the tail of a transcript into provider history.
// Only the last limit entries are considered; non-conversational roles inside
// that window are dropped rather than backfilled from older entries.
func BuildHistory(transcript []chat.Message, limit int) []*schema.Message {
	if len(transcript) == 0 || limit <= 0 {
		return nil
	}

	start := 0
	if len(transcript) > limit {
		start = len(transcript) - limit
	}

	history := make([]*schema.Message, 0, len(transcript)-start)
	for _, msg := range transcript[start:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// BuildChainInput produces the template variables for one provider call.
// transcript must be the session history as it was before question was recorded.
func BuildChainInput(transcript []chat.Message, question string, limit int) map[string]any {
	return map[string]any{
		varSystem:  SystemPrompt,
		varHistory: BuildHistory(transcript, limit),
		varQuery:   question,
	}
}

// Assemble returns the full message list sent to the provider:
// system prompt, bounded history, then the question.
func Assemble(transcript []chat.Message, question string, limit int) []*schema.Message {
	history := BuildHistory(transcript, limit)

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(SystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))
	return messages
}
