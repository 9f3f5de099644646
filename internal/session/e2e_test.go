package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/message"
	"chatsync/internal/session"
	"chatsync/internal/timeline"
	"chatsync/internal/transport"
	"chatsync/internal/transport/transporttest"
	"chatsync/pkg/logger"
)

// Full stack: REST client and websocket push against the in-process server,
// with the session merging both streams.
func TestSessionOverTheWire(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	conv, me, peer := uuid.New(), uuid.New(), uuid.New()
	client := transport.NewClient(srv.URL(), nil)
	sess := session.New(conv, me, client, logger.NewNop())
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	push := transport.NewWSChannel(srv.WSURL(), nil, logger.NewNop())
	go push.Run(ctx)
	go sess.Run(ctx, push)

	// Own send: optimistic insert, confirmed by REST, echoed by push. The
	// echo must land on the refresh path, never duplicate.
	sent, err := sess.Send(ctx, "first!", message.TypeText, "", nil)
	require.NoError(t, err)
	require.False(t, sent.IsOptimistic())

	// A peer sends through their own client; we only see the push event.
	peerClient := transport.NewClient(srv.URL(), nil)
	_, err = peerClient.SendMessage(ctx, transport.SendRequest{
		ConversationID: conv, SenderID: peer,
		Type: message.TypeText, Content: "hello from peer", ClientRandom: 7,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.Snapshot().Len() == 2
	}, 5*time.Second, 20*time.Millisecond)

	items := sess.Timeline()
	var contents []string
	for _, it := range items {
		if mi, ok := it.(timeline.MessageItem); ok {
			contents = append(contents, mi.Message.Content)
		}
	}
	require.Equal(t, []string{"hello from peer", "first!"}, contents)
	require.Equal(t, 2, sess.Snapshot().Len(), "push echo of own send did not duplicate")
}
