// Package messenger wraps the platform's graph-style messaging API:
// sending messages and sender actions, configuring the messenger
// profile (persistent menu, get-started button), fetching user
// profiles, and classifying webhook payloads into typed events.
//
// The access token is scoped data passed into every operation, never
// client state, so one client serves any number of channels without
// cross-talk.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"faqbot/internal/metrics"

	"github.com/go-resty/resty/v2"
)

const (
	defaultAPIBase    = "https://graph.facebook.com"
	defaultAPIVersion = "v2.12"

	// maxTypingDelay is the platform ceiling for a typing indicator.
	maxTypingDelay = 20 * time.Second
)

// Sender actions accepted by SendAction.
const (
	ActionTypingOn  = "typing_on"
	ActionTypingOff = "typing_off"
	ActionMarkSeen  = "mark_seen"
)

// MessagingTypeResponse is the default messaging_type for outbound sends.
const MessagingTypeResponse = "RESPONSE"

// Config configures a Client.
type Config struct {
	APIBase    string
	APIVersion string
	Logger     *slog.Logger
}

// Client issues requests against the messaging platform's HTTP API.
type Client struct {
	http       *resty.Client
	apiBase    string
	apiVersion string
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		http:       resty.New().SetTimeout(30 * time.Second),
		apiBase:    cfg.APIBase,
		apiVersion: cfg.APIVersion,
		logger:     cfg.Logger,
	}
}

// Recipient is a structured message recipient.
type Recipient struct {
	ID string `json:"id"`
}

// QuickReply is one quick-reply option attached to a message.
type QuickReply struct {
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Message is an outbound message body.
type Message struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// Button is one call-to-action entry in the persistent menu.
type Button struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// PersistentMenu is one locale's menu definition.
type PersistentMenu struct {
	Locale                string   `json:"locale"`
	ComposerInputDisabled bool     `json:"composer_input_disabled"`
	CallToActions         []Button `json:"call_to_actions"`
}

// Profile is the subset of a user profile the bot needs.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"gender"`
}

// SendOptions tunes one SendMessage call.
type SendOptions struct {
	MessagingType    string
	NotificationType string
	Tag              string

	// Typing runs the typing-indicator sequence before the send.
	// TypingDuration overrides the automatic duration (10 ms per
	// character of outgoing text, 1 s for non-text messages).
	Typing         bool
	TypingDuration time.Duration
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type graphResponse struct {
	Error *graphError `json:"error"`
}

type sendBody struct {
	Recipient        any     `json:"recipient"`
	Message          *Message `json:"message,omitempty"`
	SenderAction     string  `json:"sender_action,omitempty"`
	MessagingType    string  `json:"messaging_type,omitempty"`
	NotificationType string  `json:"notification_type,omitempty"`
	Tag              string  `json:"tag,omitempty"`
}

// createRecipient accepts either a bare sender ID or an already
// structured recipient and returns the wire form.
func createRecipient(recipient any) any {
	if id, ok := recipient.(string); ok {
		return Recipient{ID: id}
	}
	return recipient
}

// sendRequest issues one request against /<version>/me/<endpoint>.
// Platform-reported errors are logged and returned; the caller treats
// a non-nil error as "send not confirmed" and proceeds without retry.
func (c *Client) sendRequest(ctx context.Context, token, endpoint, method string, body any) error {
	url := fmt.Sprintf("%s/%s/me/%s", c.apiBase, c.apiVersion, endpoint)
	metrics.GraphRequest(endpoint)

	var out graphResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Execute(method, url)
	if err != nil {
		c.logger.Error("graph request failed", "endpoint", endpoint, "err", err)
		metrics.GraphError(endpoint)
		return fmt.Errorf("graph %s: %w", endpoint, err)
	}
	if out.Error != nil {
		c.logger.Error("graph error response",
			"endpoint", endpoint,
			"code", out.Error.Code,
			"type", out.Error.Type,
			"message", out.Error.Message,
		)
		metrics.GraphError(endpoint)
		return fmt.Errorf("graph %s: %s (code %d)", endpoint, out.Error.Message, out.Error.Code)
	}
	if resp.IsError() {
		c.logger.Error("graph request rejected", "endpoint", endpoint, "status", resp.StatusCode())
		metrics.GraphError(endpoint)
		return fmt.Errorf("graph %s: status %d", endpoint, resp.StatusCode())
	}
	return nil
}

// SendMessage sends a message, optionally preceded by the
// typing-indicator sequence. Quick replies are normalized before
// sending.
func (c *Client) SendMessage(ctx context.Context, token string, recipient any, msg Message, opts *SendOptions) error {
	if opts == nil {
		opts = &SendOptions{}
	}
	if len(msg.QuickReplies) > 0 {
		msg.QuickReplies = formatQuickReplies(msg.QuickReplies)
	}

	messagingType := opts.MessagingType
	if messagingType == "" {
		messagingType = MessagingTypeResponse
	}

	if opts.Typing {
		d := opts.TypingDuration
		if d <= 0 {
			d = autoTypingDelay(msg)
		}
		if err := c.SendTypingIndicator(ctx, token, recipient, d); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Indicator failures do not block the message itself.
			c.logger.Warn("typing indicator not confirmed", "err", err)
		}
	}

	return c.sendRequest(ctx, token, "messages", http.MethodPost, sendBody{
		Recipient:        createRecipient(recipient),
		Message:          &msg,
		MessagingType:    messagingType,
		NotificationType: opts.NotificationType,
		Tag:              opts.Tag,
	})
}

// SendTextMessage sends a plain text message.
func (c *Client) SendTextMessage(ctx context.Context, token string, recipient any, text string, opts *SendOptions) error {
	return c.SendMessage(ctx, token, recipient, Message{Text: text}, opts)
}

// autoTypingDelay derives a typing duration from the outgoing text:
// 10 ms per character, 1 s for non-text messages.
func autoTypingDelay(msg Message) time.Duration {
	if msg.Text != "" {
		return time.Duration(len(msg.Text)) * 10 * time.Millisecond
	}
	return time.Second
}

// clampTypingDelay bounds the scheduled wait to [0, 20s]. A negative
// duration waits zero.
func clampTypingDelay(d time.Duration, logger *slog.Logger) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxTypingDelay {
		logger.Warn("typing indicator duration clamped", "requested", d, "max", maxTypingDelay)
		return maxTypingDelay
	}
	return d
}

// SendTypingIndicator turns typing on, waits for the (clamped)
// duration, turns typing off, and returns once the off-action
// completes.
func (c *Client) SendTypingIndicator(ctx context.Context, token string, recipient any, d time.Duration) error {
	d = clampTypingDelay(d, c.logger)

	if err := c.SendAction(ctx, token, recipient, ActionTypingOn); err != nil {
		c.logger.Warn("typing_on not confirmed", "err", err)
	}

	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.SendAction(ctx, token, recipient, ActionTypingOff)
}

// SendAction sends a bare sender action (typing_on, typing_off, mark_seen).
func (c *Client) SendAction(ctx context.Context, token string, recipient any, action string) error {
	return c.sendRequest(ctx, token, "messages", http.MethodPost, sendBody{
		Recipient:    createRecipient(recipient),
		SenderAction: action,
	})
}

func (c *Client) sendProfileRequest(ctx context.Context, token, method string, body any) error {
	return c.sendRequest(ctx, token, "messenger_profile", method, body)
}

// SetGetStartedButton configures the greeting button. An empty payload
// defaults to GET_STARTED.
func (c *Client) SetGetStartedButton(ctx context.Context, token, payload string) error {
	if payload == "" {
		payload = "GET_STARTED"
	}
	return c.sendProfileRequest(ctx, token, http.MethodPost, map[string]any{
		"get_started": map[string]string{"payload": payload},
	})
}

// DeleteGetStartedButton removes the greeting button.
func (c *Client) DeleteGetStartedButton(ctx context.Context, token string) error {
	return c.sendProfileRequest(ctx, token, http.MethodDelete, map[string]any{
		"fields": []string{"get_started"},
	})
}

// SetPersistentMenu configures the platform-rendered menu from a flat
// button list. Untyped buttons become postback entries with a payload
// derived from the title.
func (c *Client) SetPersistentMenu(ctx context.Context, token string, buttons []Button, disableInput bool) error {
	return c.sendProfileRequest(ctx, token, http.MethodPost, map[string]any{
		"persistent_menu": []PersistentMenu{{
			Locale:                "default",
			ComposerInputDisabled: disableInput,
			CallToActions:         formatButtons(buttons),
		}},
	})
}

// SetLocalizedPersistentMenu sends already-localized menu entries unmodified.
func (c *Client) SetLocalizedPersistentMenu(ctx context.Context, token string, menus []PersistentMenu) error {
	return c.sendProfileRequest(ctx, token, http.MethodPost, map[string]any{
		"persistent_menu": menus,
	})
}

// DeletePersistentMenu removes the platform-rendered menu.
func (c *Client) DeletePersistentMenu(ctx context.Context, token string) error {
	return c.sendProfileRequest(ctx, token, http.MethodDelete, map[string]any{
		"fields": []string{"persistent_menu"},
	})
}

// GetUserProfile fetches first name, last name, and gender for a sender.
func (c *Client) GetUserProfile(ctx context.Context, token, userID string) (*Profile, error) {
	url := fmt.Sprintf("%s/%s/%s", c.apiBase, c.apiVersion, userID)

	var profile Profile
	var gerr graphResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("fields", "first_name,last_name,gender").
		SetQueryParam("access_token", token).
		SetResult(&profile).
		SetError(&gerr).
		Get(url)
	if err != nil {
		c.logger.Error("profile request failed", "user_id", userID, "err", err)
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	if resp.IsError() {
		if gerr.Error != nil {
			return nil, fmt.Errorf("get user profile: %s (code %d)", gerr.Error.Message, gerr.Error.Code)
		}
		return nil, fmt.Errorf("get user profile: status %d", resp.StatusCode())
	}
	if profile.ID == "" {
		profile.ID = userID
	}
	return &profile, nil
}
