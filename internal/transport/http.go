package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatsync/internal/domain/message"
	chatsync_errors "chatsync/pkg/errors"

	"github.com/google/uuid"
)

// Client is the REST implementation of Transport.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenSource
}

func NewClient(baseURL string, tokens *TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
}

type messagesResponse struct {
	Messages []message.Message `json:"messages"`
}

type reactionsResponse struct {
	Reactions []message.Reaction `json:"reactions"`
}

func (c *Client) FetchMessages(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]message.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != nil {
		q.Set("before", before.Format(time.RFC3339Nano))
	}
	path := fmt.Sprintf("/api/conversations/%s/messages?%s", conversationID, q.Encode())
	var out messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (message.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", req.ConversationID)
	var out message.Message
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return message.Message{}, err
	}
	return out, nil
}

type editRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Content        string    `json:"content"`
}

func (c *Client) EditMessage(ctx context.Context, messageID string, conversationID uuid.UUID, newContent string) (message.Message, error) {
	path := fmt.Sprintf("/api/messages/%s", messageID)
	var out message.Message
	if err := c.do(ctx, http.MethodPatch, path, editRequest{ConversationID: conversationID, Content: newContent}, &out); err != nil {
		return message.Message{}, err
	}
	return out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string, conversationID uuid.UUID, forEveryone bool) error {
	q := url.Values{}
	q.Set("conversation_id", conversationID.String())
	q.Set("for_everyone", strconv.FormatBool(forEveryone))
	path := fmt.Sprintf("/api/messages/%s?%s", messageID, q.Encode())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

type reactionRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
}

func (c *Client) AddReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error {
	path := fmt.Sprintf("/api/messages/%s/reactions", messageID)
	return c.do(ctx, http.MethodPost, path, reactionRequest{UserID: userID, Emoji: emoji}, nil)
}

func (c *Client) RemoveReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error {
	q := url.Values{}
	q.Set("user_id", userID.String())
	q.Set("emoji", emoji)
	path := fmt.Sprintf("/api/messages/%s/reactions?%s", messageID, q.Encode())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetReactions(ctx context.Context, messageID string) ([]message.Reaction, error) {
	path := fmt.Sprintf("/api/messages/%s/reactions", messageID)
	var out reactionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Reactions, nil
}

func (c *Client) PinMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error {
	path := fmt.Sprintf("/api/conversations/%s/pins/%s", conversationID, messageID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) UnpinMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error {
	path := fmt.Sprintf("/api/conversations/%s/pins/%s", conversationID, messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetPinnedMessages(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/pins", conversationID)
	var out messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type typingRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Typing bool      `json:"typing"`
}

func (c *Client) SendTyping(ctx context.Context, conversationID, userID uuid.UUID, typing bool) error {
	path := fmt.Sprintf("/api/conversations/%s/typing", conversationID)
	return c.do(ctx, http.MethodPost, path, typingRequest{UserID: userID, Typing: typing}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return chatsync_errors.Transport(method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return chatsync_errors.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return chatsync_errors.ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return chatsync_errors.ErrConflict
	case resp.StatusCode >= 400:
		return chatsync_errors.Transport(method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
