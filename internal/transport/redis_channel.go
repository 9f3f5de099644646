package transport

import (
	"context"
	"encoding/json"

	"chatsync/internal/events"
	"chatsync/pkg/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub implementation of PushChannel, for consumers
// that run next to the backend (bots, operational tooling) and can subscribe
// to the conversation fan-out channel directly instead of holding a socket.
type RedisChannel struct {
	client         *goredis.Client
	conversationID uuid.UUID
	log            *logger.Logger
	events         chan PushEvent
}

func NewRedisChannel(client *goredis.Client, conversationID uuid.UUID, log *logger.Logger) *RedisChannel {
	return &RedisChannel{
		client:         client,
		conversationID: conversationID,
		log:            log,
		events:         make(chan PushEvent, 256),
	}
}

func (c *RedisChannel) Events() <-chan PushEvent {
	return c.events
}

func (c *RedisChannel) Run(ctx context.Context) error {
	defer close(c.events)

	channel := events.ChannelPrefixConversation + c.conversationID.String()
	sub := c.client.Subscribe(ctx, channel)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var env events.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.log.Warnf("redis channel: undecodable payload: %v", err)
			continue
		}
		ev, err := DecodeEnvelope(env)
		if err != nil {
			c.log.Warnf("redis channel: bad payload for %s: %v", env.EventType, err)
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
