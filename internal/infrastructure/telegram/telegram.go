// Package telegram fronts the chat collaborator: reaction markers and
// replies going out, long-polled message events coming in.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ArticleStock/internal/config"
	"ArticleStock/internal/domain"
	"ArticleStock/internal/ports"
)

const (
	pollTimeoutSeconds = 50
	pollRetryDelay     = 3 * time.Second
)

// markerEmoji maps pipeline markers onto the Bot API reaction set.
var markerEmoji = map[domain.MarkerKind]string{
	domain.MarkerReceived: "👀",
	domain.MarkerSuccess:  "👍",
	domain.MarkerError:    "💔",
}

// Client talks to the Telegram Bot API for a single watched chat.
type Client struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.Notifier = (*Client)(nil)

// NewClient registers bot token and watched chat identifier.
func NewClient(cfg config.TelegramConfig, logger *slog.Logger) *Client {
	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		baseURL: base,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: (pollTimeoutSeconds + 10) * time.Second},
		logger:  logger,
	}
}

// AddMarker sets a reaction on the given message.
func (c *Client) AddMarker(ctx context.Context, messageID string, kind domain.MarkerKind) error {
	emoji, ok := markerEmoji[kind]
	if !ok {
		return fmt.Errorf("unknown marker kind %q", kind)
	}

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("message_id", messageID)
	form.Set("reaction", fmt.Sprintf(`[{"type":"emoji","emoji":"%s"}]`, emoji))

	return c.post(ctx, "setMessageReaction", form, nil)
}

// Reply sends text in reply to the given message and returns the id of the
// sent message, which doubles as a thread identifier for later comments.
func (c *Client) Reply(ctx context.Context, messageID, text string) (string, error) {
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)
	form.Set("reply_to_message_id", messageID)

	var result struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := c.post(ctx, "sendMessage", form, &result); err != nil {
		return "", err
	}
	return strconv.FormatInt(result.Result.MessageID, 10), nil
}

// update mirrors the subset of the Bot API update payload the bot consumes.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		From      struct {
			IsBot bool `json:"is_bot"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		ReplyTo *struct {
			MessageID int64 `json:"message_id"`
		} `json:"reply_to_message"`
	} `json:"message"`
}

// Listen long-polls for updates and dispatches them to the handler until
// the context is cancelled. Messages from other chats are dropped; replies
// to an earlier message dispatch as thread replies.
func (c *Client) Listen(ctx context.Context, handler ports.EventHandler) error {
	var offset int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.warn("poll updates failed", "error", err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			c.dispatch(ctx, handler, u)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, handler ports.EventHandler, u update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	if c.chatID != "" && strconv.FormatInt(u.Message.Chat.ID, 10) != c.chatID {
		return
	}

	messageID := strconv.FormatInt(u.Message.MessageID, 10)
	if u.Message.ReplyTo != nil {
		threadID := strconv.FormatInt(u.Message.ReplyTo.MessageID, 10)
		handler.HandleThreadReply(ctx, threadID, messageID, u.Message.Text)
		return
	}
	handler.HandleNewMessage(ctx, messageID, u.Message.From.IsBot, u.Message.Text)
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	form := url.Values{}
	form.Set("timeout", strconv.Itoa(pollTimeoutSeconds))
	if offset > 0 {
		form.Set("offset", strconv.FormatInt(offset, 10))
	}

	var result struct {
		Result []update `json:"result"`
	}
	if err := c.post(ctx, "getUpdates", form, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

func (c *Client) post(ctx context.Context, method string, form url.Values, v any) error {
	if c.token == "" {
		return fmt.Errorf("telegram client misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
