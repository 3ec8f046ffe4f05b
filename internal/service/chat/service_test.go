package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	chatmodel "github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/ai"
	chat "github.com/zhouzirui/ai-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/realtime"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/transcript"
)

type stubAnswerer struct {
	answer    string
	err       error
	histories [][]chatmodel.Message
}

func (s *stubAnswerer) Answer(_ context.Context, _ string, history []chatmodel.Message, question string) (string, error) {
	s.histories = append(s.histories, history)
	if s.err != nil {
		return "", s.err
	}
	if s.answer != "" {
		return s.answer, nil
	}
	return "answer to " + question, nil
}

type recordingModel struct {
	mu     sync.Mutex
	inputs [][]*schema.Message
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()
	return schema.AssistantMessage(fmt.Sprintf("answer %d", len(m.inputs)), nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *recordingModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func TestAskWithoutProviderReturnsPlaceholder(t *testing.T) {
	svc := chat.NewService(transcript.NewStore())
	ctx := context.Background()

	res, err := svc.Ask(ctx, "s1", "What courses fill the CS elective?")
	if err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	if res.Answer != chat.PlaceholderAnswer {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
	if res.Count != 2 {
		t.Fatalf("expected count 2, got %d", res.Count)
	}

	messages := svc.Transcript(ctx, "s1")
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != chatmodel.RoleUser || messages[1].Role != chatmodel.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", messages[0].Role, messages[1].Role)
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	svc := chat.NewService(transcript.NewStore())
	ctx := context.Background()

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Ask(ctx, "s1", q); !errors.Is(err, chat.ErrQuestionRequired) {
			t.Fatalf("expected ErrQuestionRequired for %q, got %v", q, err)
		}
	}

	if got := svc.Transcript(ctx, "s1"); len(got) != 0 {
		t.Fatalf("blank question must not mutate transcript, got %d messages", len(got))
	}
}

func TestAskRecordsTwoMessagesPerCallInOrder(t *testing.T) {
	svc := chat.NewService(transcript.NewStore(), chat.WithAnswerer(&stubAnswerer{}))
	ctx := context.Background()

	const calls = 5
	for i := 0; i < calls; i++ {
		if _, err := svc.Ask(ctx, "s1", fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Ask err: %v", err)
		}
	}

	messages := svc.Transcript(ctx, "s1")
	if len(messages) != 2*calls {
		t.Fatalf("expected %d messages, got %d", 2*calls, len(messages))
	}
	for i := 0; i < calls; i++ {
		user, assistant := messages[2*i], messages[2*i+1]
		if user.Role != chatmodel.RoleUser || user.Content != fmt.Sprintf("q%d", i) {
			t.Fatalf("unexpected user message %d: %+v", i, user)
		}
		if assistant.Role != chatmodel.RoleAssistant || assistant.Content != fmt.Sprintf("answer to q%d", i) {
			t.Fatalf("unexpected assistant message %d: %+v", i, assistant)
		}
	}
}

func TestAskPassesHistoryBeforeQuestion(t *testing.T) {
	stub := &stubAnswerer{}
	svc := chat.NewService(transcript.NewStore(), chat.WithAnswerer(stub))
	ctx := context.Background()

	if _, err := svc.Ask(ctx, "s1", "first"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if _, err := svc.Ask(ctx, "s1", "second"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	if len(stub.histories[0]) != 0 {
		t.Fatalf("first call should see no history, got %d", len(stub.histories[0]))
	}
	if len(stub.histories[1]) != 2 || stub.histories[1][1].Content != "answer to first" {
		t.Fatalf("second call should see the first exchange, got %+v", stub.histories[1])
	}
}

func TestAskFoldsProviderErrorIntoAnswer(t *testing.T) {
	svc := chat.NewService(transcript.NewStore(), chat.WithAnswerer(&stubAnswerer{err: errors.New("401 invalid api key")}))
	ctx := context.Background()

	res, err := svc.Ask(ctx, "s1", "hello")
	if err != nil {
		t.Fatalf("provider errors must not surface, got %v", err)
	}
	if res.Answer != "Error: 401 invalid api key" {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}

	messages := svc.Transcript(ctx, "s1")
	if len(messages) != 2 || messages[1].Content != res.Answer {
		t.Fatalf("error answer must be stored as assistant turn, got %+v", messages)
	}
}

func TestAskDefaultsSessionAndTrimsQuestion(t *testing.T) {
	svc := chat.NewService(transcript.NewStore())
	ctx := context.Background()

	if _, err := svc.Ask(ctx, "  ", "  hi  "); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	messages := svc.Transcript(ctx, chatmodel.DefaultSessionID)
	if len(messages) != 2 || messages[0].Content != "hi" {
		t.Fatalf("expected trimmed question in demo session, got %+v", messages)
	}
}

func TestAskKeepsSessionIDVerbatim(t *testing.T) {
	svc := chat.NewService(transcript.NewStore())
	ctx := context.Background()

	if _, err := svc.Ask(ctx, " s1 ", "hi"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	if got := svc.Transcript(ctx, "s1"); len(got) != 0 {
		t.Fatalf("padded id must not share the s1 transcript, got %d messages", len(got))
	}
	if got := svc.Transcript(ctx, " s1 "); len(got) != 2 {
		t.Fatalf("expected 2 messages under the padded id, got %d", len(got))
	}
}

func TestClearThenTranscriptIsEmpty(t *testing.T) {
	svc := chat.NewService(transcript.NewStore())
	ctx := context.Background()

	if _, err := svc.Ask(ctx, "s1", "hello"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	if got := svc.Clear(ctx, "s1"); got != "s1" {
		t.Fatalf("unexpected session id: %s", got)
	}
	if got := svc.Transcript(ctx, "s1"); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(got))
	}
	if got := svc.Clear(ctx, "never-used"); got != "never-used" {
		t.Fatalf("clear of unknown session must succeed, got %s", got)
	}
}

func TestHistoryBoundOnSeventhCall(t *testing.T) {
	recorder := &recordingModel{}
	aiSvc, err := ai.NewService(context.Background(), recorder, ai.Options{Provider: "fake", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("ai.NewService err: %v", err)
	}
	svc := chat.NewService(transcript.NewStore(), chat.WithAnswerer(aiSvc))
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		if _, err := svc.Ask(ctx, "s1", fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Ask %d err: %v", i, err)
		}
	}
	if got := len(svc.Transcript(ctx, "s1")); got != 12 {
		t.Fatalf("expected 12 stored messages, got %d", got)
	}

	res, err := svc.Ask(ctx, "s1", "q7")
	if err != nil {
		t.Fatalf("Ask 7 err: %v", err)
	}
	if res.Count != 14 {
		t.Fatalf("expected count 14, got %d", res.Count)
	}

	sent := recorder.inputs[len(recorder.inputs)-1]
	if len(sent) != 6 {
		t.Fatalf("expected system + 4 history + question, got %d messages", len(sent))
	}
	if sent[0].Role != schema.System {
		t.Fatalf("first message must be the system prompt, got %s", sent[0].Role)
	}
	want := []string{"q5", "answer 5", "q6", "answer 6", "q7"}
	for i, content := range want {
		if sent[i+1].Content != content {
			t.Fatalf("message %d: expected %q, got %q", i+1, content, sent[i+1].Content)
		}
	}
}

func TestAskPublishesRealtimeEvents(t *testing.T) {
	hub := realtime.NewHub()
	defer hub.Close()
	svc := chat.NewService(transcript.NewStore(), chat.WithBroker(hub))
	ctx := context.Background()

	events, cancel, err := svc.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()

	if _, err := svc.Ask(ctx, "s1", "hello"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	svc.Clear(ctx, "s1")

	var got []string
	for len(got) < 3 {
		select {
		case ev := <-events:
			label := ev.Type
			if ev.Message != nil {
				label += ":" + string(ev.Message.Role)
			}
			got = append(got, label)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got events %v", got)
		}
	}

	if strings.Join(got, ",") != "message:user,message:assistant,clear" {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestPushValidatesContent(t *testing.T) {
	hub := realtime.NewHub()
	defer hub.Close()
	svc := chat.NewService(transcript.NewStore(), chat.WithBroker(hub))
	ctx := context.Background()

	if err := svc.Push(ctx, "s1", "", "   "); !errors.Is(err, chat.ErrContentRequired) {
		t.Fatalf("expected ErrContentRequired, got %v", err)
	}

	events, cancel, err := svc.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	defer cancel()

	if err := svc.Push(ctx, "s1", "", "typing..."); err != nil {
		t.Fatalf("Push err: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Message == nil || ev.Message.Role != chatmodel.RoleUser || ev.Message.Content != "typing..." {
			t.Fatalf("unexpected pushed event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed event")
	}

	if got := svc.Transcript(ctx, "s1"); len(got) != 0 {
		t.Fatalf("push must not be recorded, got %d messages", len(got))
	}
}

func TestPushWithoutBrokerFails(t *testing.T) {
	svc := chat.NewService(transcript.NewStore())

	if err := svc.Push(context.Background(), "s1", "", "typing..."); !errors.Is(err, realtime.ErrClosed) {
		t.Fatalf("expected realtime.ErrClosed, got %v", err)
	}
}
