// Package transport exposes the messaging webhook and the outbound
// reply client.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aikun/internal/logging"
)

// ReplySender delivers one outbound text reply for an inbound event.
type ReplySender interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// LineReplyClient posts replies to the LINE Messaging API.
type LineReplyClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewLineReplyClient(endpoint, channelToken string) *LineReplyClient {
	return &LineReplyClient{
		endpoint: endpoint,
		token:    channelToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type replyMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string         `json:"replyToken"`
	Messages   []replyMessage `json:"messages"`
}

// Reply sends a single text message against the reply token. Reply
// tokens are one-shot and short-lived; a failed send is logged upstream
// and never retried.
func (c *LineReplyClient) Reply(ctx context.Context, replyToken, text string) error {
	body, err := json.Marshal(replyRequest{
		ReplyToken: replyToken,
		Messages:   []replyMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logging.Transport("reply rejected: status=%d body=%s", resp.StatusCode, detail)
		return fmt.Errorf("reply API returned status %d", resp.StatusCode)
	}
	return nil
}
