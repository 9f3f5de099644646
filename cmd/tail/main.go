// Command tail connects to a chat backend and follows one conversation,
// printing the projected timeline as it changes. With no backend configured
// it spins up the in-process fake server and seeds a short conversation, so
// the engine can be exercised end to end out of the box.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/domain/message"
	"chatsync/internal/session"
	"chatsync/internal/timeline"
	"chatsync/internal/transport"
	"chatsync/internal/transport/transporttest"
	"chatsync/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	conversationFlag := flag.String("conversation", "", "conversation id to follow (random when using the demo server)")
	demo := flag.Bool("demo", false, "run against an in-process fake backend")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.New(cfg.API.Environment)
	logger.SetGlobalLogger(lg)
	defer lg.Logger.Sync()

	userID := uuid.New()
	conversationID := uuid.New()
	if *conversationFlag != "" {
		conversationID, err = uuid.Parse(*conversationFlag)
		if err != nil {
			log.Fatalf("bad conversation id: %v", err)
		}
	}

	apiURL, pushURL := cfg.API.BaseURL, cfg.Push.URL
	if *demo {
		srv := transporttest.NewServer()
		defer srv.Close()
		seedDemo(srv, conversationID)
		apiURL, pushURL = srv.URL(), srv.WSURL()
		lg.Infof("demo backend at %s", apiURL)
	}

	var tokens *transport.TokenSource
	if cfg.API.Token != "" {
		tokens, err = transport.NewTokenSource(cfg.API.Token)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
	}

	client := transport.NewClient(apiURL, tokens)
	sess := session.New(conversationID, userID, client, lg)
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Socket clients follow the websocket fan-out; consumers running next to
	// the backend can subscribe to the conversation channel directly instead.
	var push transport.PushChannel
	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		push = transport.NewRedisChannel(rdb, conversationID, lg)
		lg.Infof("push via redis pub/sub at %s", cfg.Redis.Addr)
	} else {
		push = transport.NewWSChannel(pushURL, tokens, lg)
	}
	go func() {
		if err := push.Run(ctx); err != nil {
			lg.Errorf("push channel: %v", err)
		}
	}()
	go sess.Run(ctx, push)

	if _, err := sess.LoadOlder(ctx); err != nil {
		lg.Errorf("initial load: %v", err)
	}
	render(sess)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			render(sess)
		}
	}
}

func render(sess *session.Session) {
	items := sess.Timeline()
	fmt.Print("\033[H\033[2J")
	// Print oldest-first so the newest line lands at the bottom of the
	// terminal, like a chat screen.
	for i := len(items) - 1; i >= 0; i-- {
		switch it := items[i].(type) {
		case timeline.DateSeparator:
			fmt.Printf("---- %s ----\n", it.Label)
		case timeline.MessageItem:
			m := it.Message
			fmt.Printf("[%s] %s: %s\n", m.State, shortID(m.SenderID), m.Content)
		}
	}
	if users := sess.TypingUsers(); len(users) > 0 {
		fmt.Printf("(%d typing...)\n", len(users))
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func seedDemo(srv *transporttest.Server, conversationID uuid.UUID) {
	alice, bob := uuid.New(), uuid.New()
	now := time.Now()
	srv.Store().Seed(
		message.Message{ID: uuid.NewString(), ConversationID: conversationID, SenderID: alice,
			Type: message.TypeText, Content: "hey, are we still on for tonight?", SentAt: now.Add(-26 * time.Hour), State: message.StateRead},
		message.Message{ID: uuid.NewString(), ConversationID: conversationID, SenderID: bob,
			Type: message.TypeText, Content: "yes! 19:00 works", SentAt: now.Add(-25 * time.Hour), State: message.StateRead},
		message.Message{ID: uuid.NewString(), ConversationID: conversationID, SenderID: alice,
			Type: message.TypeText, Content: "perfect, see you there", SentAt: now.Add(-1 * time.Hour), State: message.StateDelivered},
	)
}
