package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/ai-advisor/backend/internal/config"
	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/realtime"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	mode := flag.String("mode", "", "测试模式: ask 或 mirror")
	question := flag.String("question", "", "ask 模式: 发送给模型的问题")
	server := flag.String("server", "http://localhost:5000", "mirror 模式: relay 地址")
	session := flag.String("session", "", "sessionId，留空则使用 demo")
	timeout := flag.Duration("timeout", 45*time.Second, "ask 模式请求超时时间")

	flag.Parse()

	switch *mode {
	case "ask":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		runAsk(ctx, *question)
	case "mirror":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runMirror(ctx, *server, chat.NormalizeSessionID(*session))
	default:
		flag.Usage()
		log.Fatal().Msg("请通过 -mode=ask 或 -mode=mirror 指定测试模式")
	}
}

// runAsk sends one question straight to the configured provider, bypassing
// the relay and its transcript.
func runAsk(ctx context.Context, question string) {
	if strings.TrimSpace(question) == "" {
		log.Fatal().Msg("ask 模式需要通过 -question 提供问题")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}
	if !cfg.AI.Enabled() {
		log.Fatal().Str("provider", cfg.AI.Provider).Msg("provider credential not configured")
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chat model")
	}
	svc, err := ai.NewService(ctx, chatModel, ai.Options{
		Provider:     cfg.AI.Provider,
		HistoryLimit: cfg.Chat.HistoryLimit,
		Timeout:      cfg.AI.Timeout,
		Logger:       log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI service")
	}

	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("开始测试")

	start := time.Now()
	answer, err := svc.Answer(ctx, chat.DefaultSessionID, nil, question)
	if err != nil {
		log.Fatal().Err(err).Msg("provider call failed")
	}

	log.Info().Dur("latency", time.Since(start)).Msg("provider answered")
	fmt.Println(answer)
}

// runMirror follows a session transcript on a running relay and prints every
// change, the way a kiosk display would.
func runMirror(ctx context.Context, server, sessionID string) {
	target, err := mirrorURL(server, sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid server address")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", target).Msg("failed to connect")
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	log.Info().Str("session_id", sessionID).Msg("mirroring transcript")

	var snapshot struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := conn.ReadJSON(&snapshot); err != nil {
		log.Fatal().Err(err).Msg("failed to read snapshot")
	}
	for _, msg := range snapshot.Messages {
		printMessage(msg)
	}

	for {
		var event realtime.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("mirror connection closed")
			}
			return
		}

		switch event.Type {
		case realtime.EventMessage:
			if event.Message != nil {
				printMessage(*event.Message)
			}
		case realtime.EventClear:
			fmt.Println("---- transcript cleared ----")
		}
	}
}

func mirrorURL(server, sessionID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/transcript/ws"
	u.RawQuery = url.Values{"sessionId": {sessionID}}.Encode()
	return u.String(), nil
}

func printMessage(msg chat.Message) {
	fmt.Printf("[%s] %-9s %s\n", msg.Timestamp.Local().Format(time.TimeOnly), msg.Role, msg.Content)
}
