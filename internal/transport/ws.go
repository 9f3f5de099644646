package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chatsync/internal/events"
	"chatsync/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSChannel is the websocket implementation of PushChannel. It dials the
// push endpoint, decodes event envelopes off the wire and redials with
// capped backoff when the connection drops.
type WSChannel struct {
	url    string
	tokens *TokenSource
	log    *logger.Logger
	events chan PushEvent

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSChannel(url string, tokens *TokenSource, log *logger.Logger) *WSChannel {
	return &WSChannel{
		url:    url,
		tokens: tokens,
		log:    log,
		events: make(chan PushEvent, 256),
	}
}

func (c *WSChannel) Events() <-chan PushEvent {
	return c.events
}

// Run blocks until ctx is cancelled. The events channel is closed on return
// so consumers can range over it.
func (c *WSChannel) Run(ctx context.Context) error {
	defer close(c.events)

	backoff := time.Second
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warnf("push channel dropped, reconnecting in %s: %v", backoff, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *WSChannel) runOnce(ctx context.Context) error {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx, conn)

	// Close the socket when ctx is cancelled so the blocking read returns.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warnf("push channel: undecodable frame: %v", err)
			continue
		}
		ev, err := DecodeEnvelope(env)
		if err != nil {
			c.log.Warnf("push channel: bad payload for %s: %v", env.EventType, err)
			continue
		}
		if ev == nil {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *WSChannel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, []byte("ping"))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
