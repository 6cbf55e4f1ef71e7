// Package bot decides which reply flow an inbound event runs: admin
// command, FAQ menu flow, hand-off-to-human flow, or free-form chat.
// There is no in-memory session state; everything a decision needs is
// recovered from the user store and the event itself.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"faqbot/internal/content"
	"faqbot/internal/domain"
	"faqbot/internal/messenger"
)

// Admin command strings, matched exactly against message text.
const (
	cmdSetMenu       = "set menu"
	cmdDelMenu       = "del menu"
	cmdSetGetStarted = "set get started"
	cmdDelGetStarted = "del get started"
)

// Postback payload tokens.
const (
	payloadGetStarted   = "GET_STARTED"
	payloadMenuFAQ      = "MENU_FAQ"
	payloadTalkToPerson = "TALK_TO_PERSON"
)

const handOffReply = "We are currently busy serving customers inside the camp. We're humbly asking for your patience."

// questionPayload matches FAQ quick-reply payloads like QUESTION_3.
var questionPayload = regexp.MustCompile(`^QUESTION_(\d+)$`)

// Dispatcher routes typed events to their reply flows.
type Dispatcher struct {
	client    *messenger.Client
	completer domain.Completer
	users     domain.UserStore
	content   *content.Content
	logger    *slog.Logger

	greetTypingDelay   time.Duration
	handOffTypingDelay time.Duration
}

type Config struct {
	Client    *messenger.Client
	Completer domain.Completer
	Users     domain.UserStore
	Content   *content.Content
	Logger    *slog.Logger
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		client:             cfg.Client,
		completer:          cfg.Completer,
		users:              cfg.Users,
		content:            cfg.Content,
		logger:             cfg.Logger,
		greetTypingDelay:   time.Second,
		handOffTypingDelay: 2 * time.Second,
	}
}

// Dispatch runs the reply flow for one event using the channel's
// access token. Errors are reported to the caller for logging; they
// never abort sibling events in the same delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, token string, ev messenger.Event) error {
	switch ev.Kind {
	case messenger.EventMessage:
		return d.handleMessage(ctx, token, ev)
	case messenger.EventQuickReply:
		return d.handleQuickReply(ctx, token, ev)
	case messenger.EventPostback:
		return d.handlePostback(ctx, token, ev)
	case messenger.EventRead, messenger.EventDelivery, messenger.EventAccountLinking:
		// Acknowledged, no reply.
		return nil
	case messenger.EventReferral:
		// No referral-based feature yet.
		return nil
	default:
		d.logger.Warn("unknown event", "channel", ev.ChannelID, "sender", ev.SenderID)
		return nil
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, token string, ev messenger.Event) error {
	if d.content.IsAdmin(ev.SenderID) {
		switch ev.Text {
		case cmdSetMenu:
			if err := d.client.SetPersistentMenu(ctx, token, d.menuButtons(), false); err != nil {
				return fmt.Errorf("set menu: %w", err)
			}
			return d.confirm(ctx, token, ev.SenderID, "Menu has been set.")
		case cmdDelMenu:
			if err := d.client.DeletePersistentMenu(ctx, token); err != nil {
				return fmt.Errorf("del menu: %w", err)
			}
			return d.confirm(ctx, token, ev.SenderID, "Menu has been deleted.")
		case cmdSetGetStarted:
			if err := d.client.SetGetStartedButton(ctx, token, payloadGetStarted); err != nil {
				return fmt.Errorf("set get started: %w", err)
			}
			return d.confirm(ctx, token, ev.SenderID, "Get Started button has been set.")
		case cmdDelGetStarted:
			// The greeting button cannot outlive the menu that opens it.
			if err := d.client.DeletePersistentMenu(ctx, token); err != nil {
				return fmt.Errorf("del get started: %w", err)
			}
			if err := d.client.DeleteGetStartedButton(ctx, token); err != nil {
				return fmt.Errorf("del get started: %w", err)
			}
			return d.confirm(ctx, token, ev.SenderID, "Get Started button has been deleted.")
		}
	}
	return d.chat(ctx, token, ev.SenderID, ev.Text)
}

func (d *Dispatcher) handleQuickReply(ctx context.Context, token string, ev messenger.Event) error {
	m := questionPayload.FindStringSubmatch(ev.QuickReplyPayload)
	if m == nil {
		d.logger.Debug("unrecognized quick reply", "payload", ev.QuickReplyPayload)
		return nil
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	question, ok := d.content.Question(index)
	if !ok {
		d.logger.Warn("quick reply question out of range", "index", index)
		return nil
	}
	return d.chat(ctx, token, ev.SenderID, question)
}

func (d *Dispatcher) handlePostback(ctx context.Context, token string, ev messenger.Event) error {
	switch ev.PostbackPayload {
	case payloadGetStarted, payloadMenuFAQ:
		return d.greet(ctx, token, ev.SenderID)
	case payloadTalkToPerson:
		return d.handOff(ctx, token, ev.SenderID)
	default:
		d.logger.Debug("unrecognized postback", "payload", ev.PostbackPayload)
		return nil
	}
}

// chat forwards text, with the Guide Set prepended, to the completion
// bridge and sends its reply. The bridge substitutes a fallback on
// failure, so there is always something to send.
func (d *Dispatcher) chat(ctx context.Context, token, senderID, text string) error {
	messages := append(d.content.GuideMessages(), domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: text,
	})
	reply := d.completer.Complete(ctx, messages)
	return d.client.SendTextMessage(ctx, token, senderID, reply, &messenger.SendOptions{Typing: true})
}

// greet looks up (or lazily creates) the sender's user record and
// sends the personalized FAQ greeting with one quick reply per
// configured question.
func (d *Dispatcher) greet(ctx context.Context, token, senderID string) error {
	if err := d.client.SendTypingIndicator(ctx, token, senderID, d.greetTypingDelay); err != nil {
		if ctx.Err() != nil {
			return err
		}
		d.logger.Warn("typing indicator not confirmed", "err", err)
	}

	user, err := d.users.GetUser(ctx, senderID)
	if errors.Is(err, domain.ErrNotFound) {
		profile, perr := d.client.GetUserProfile(ctx, token, senderID)
		if perr != nil {
			return fmt.Errorf("greet %s: %w", senderID, perr)
		}
		u := domain.User{
			ID:        profile.ID,
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			Gender:    profile.Gender,
		}
		if ierr := d.users.InsertUser(ctx, u); ierr != nil {
			return fmt.Errorf("greet %s: %w", senderID, ierr)
		}
		user = &u
	} else if err != nil {
		return fmt.Errorf("greet %s: %w", senderID, err)
	}

	msg := greetingMessage(user, d.content.Questions)
	return d.client.SendMessage(ctx, token, senderID, msg, &messenger.SendOptions{Typing: true})
}

// greetingMessage composes the greeting text and its quick replies.
// Quick-reply payloads carry the zero-based question index.
func greetingMessage(u *domain.User, questions []string) messenger.Message {
	honorific := "Ma'am"
	if u.Gender == "male" {
		honorific = "Sir"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s %s! How may I help you?", honorific, u.FirstName)

	replies := make([]messenger.QuickReply, 0, len(questions))
	for i, q := range questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
		replies = append(replies, messenger.QuickReply{
			ContentType: "text",
			Title:       fmt.Sprintf("Question #%d", i+1),
			Payload:     fmt.Sprintf("QUESTION_%d", i),
		})
	}

	return messenger.Message{Text: b.String(), QuickReplies: replies}
}

// handOff flags the sender for a human agent and asks for patience.
func (d *Dispatcher) handOff(ctx context.Context, token, senderID string) error {
	if err := d.client.SendTypingIndicator(ctx, token, senderID, d.handOffTypingDelay); err != nil {
		if ctx.Err() != nil {
			return err
		}
		d.logger.Warn("typing indicator not confirmed", "err", err)
	}

	if err := d.users.SetTalkToPerson(ctx, senderID, true); err != nil {
		return fmt.Errorf("hand off %s: %w", senderID, err)
	}

	return d.client.SendTextMessage(ctx, token, senderID, handOffReply, &messenger.SendOptions{Typing: true})
}

// confirm replies to an admin command with a typing delay proportional
// to the confirmation length.
func (d *Dispatcher) confirm(ctx context.Context, token, senderID, text string) error {
	return d.client.SendTextMessage(ctx, token, senderID, text, &messenger.SendOptions{Typing: true})
}

// menuButtons converts the configured menu entries into postback buttons.
func (d *Dispatcher) menuButtons() []messenger.Button {
	buttons := make([]messenger.Button, 0, len(d.content.Menu))
	for _, m := range d.content.Menu {
		buttons = append(buttons, messenger.Button{
			Type:    "postback",
			Title:   m.Title,
			Payload: m.Payload,
		})
	}
	return buttons
}
