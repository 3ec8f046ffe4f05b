package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/ai-advisor/backend/internal/config"
	"github.com/zhouzirui/ai-advisor/backend/internal/handler"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/realtime"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/transcript"
)

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "not-an-address", Handler: http.NotFoundHandler()}

	if err := runServer(context.Background(), srv); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestNewBrokerFallsBackToHub(t *testing.T) {
	ctx := context.Background()

	broker := newBroker(ctx, config.RealtimeConfig{}, zerolog.Nop())
	defer broker.Close()
	if _, ok := broker.(*realtime.Hub); !ok {
		t.Fatalf("expected in-process hub, got %T", broker)
	}

	broker = newBroker(ctx, config.RealtimeConfig{RedisURL: "://bad"}, zerolog.Nop())
	defer broker.Close()
	if _, ok := broker.(*realtime.Hub); !ok {
		t.Fatalf("expected hub fallback for bad url, got %T", broker)
	}
}

func TestNewAIServiceWithoutCredential(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: config.ProviderOpenAI}}

	if svc := newAIService(context.Background(), cfg, zerolog.Nop()); svc != nil {
		t.Fatal("expected nil service without credential")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestShutdownEndsOpenMirrorFeeds(t *testing.T) {
	hub := realtime.NewHub()
	chatService := chat.NewService(transcript.NewStore(), chat.WithBroker(hub))
	router := handler.NewRouter(handler.Dependencies{
		Chat:      chatService,
		Provider:  config.ProviderOpenAI,
		StaticDir: t.TempDir(),
		Logger:    zerolog.Nop(),
	})

	addr := freeAddr(t)
	srv := newServer(addr, router, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	var resp *http.Response
	var err error
	for i := 0; i < 100; i++ {
		resp, err = http.Get("http://" + addr + "/api/transcript/stream?sessionId=s1")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "event: snapshot") {
		t.Fatalf("expected snapshot frame, got %q (%v)", line, err)
	}

	start := time.Now()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown blocked by an open mirror feed")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("shutdown took %v", elapsed)
	}
}
