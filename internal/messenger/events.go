package messenger

import "encoding/json"

// EventKind enumerates the typed conversational events a webhook
// messaging item can classify into.
type EventKind string

const (
	EventMessage        EventKind = "message"
	EventQuickReply     EventKind = "quick_reply"
	EventPostback       EventKind = "postback"
	EventRead           EventKind = "read"
	EventDelivery       EventKind = "delivery"
	EventAccountLinking EventKind = "account_linking"
	EventReferral       EventKind = "referral"
	EventUnknown        EventKind = "unknown"
)

// WebhookBody is the platform's page-event envelope.
type WebhookBody struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one page's batch of messaging items.
type WebhookEntry struct {
	ID        string          `json:"id"` // channel (page) identifier
	Time      int64           `json:"time"`
	Messaging []MessagingItem `json:"messaging"`
}

// Party identifies a sender or recipient.
type Party struct {
	ID string `json:"id"`
}

// InboundMessage is the message sub-object of a messaging item.
type InboundMessage struct {
	MID        string         `json:"mid"`
	Text       string         `json:"text"`
	IsEcho     bool           `json:"is_echo"`
	QuickReply *QuickReplyRef `json:"quick_reply,omitempty"`
}

// QuickReplyRef carries the payload of a tapped quick reply.
type QuickReplyRef struct {
	Payload string `json:"payload"`
}

// Postback is a structured button-click callback.
type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// MessagingItem is one messaging event inside a webhook entry.
type MessagingItem struct {
	Sender         Party           `json:"sender"`
	Recipient      Party           `json:"recipient"`
	Timestamp      int64           `json:"timestamp"`
	Message        *InboundMessage `json:"message,omitempty"`
	Postback       *Postback       `json:"postback,omitempty"`
	Read           json.RawMessage `json:"read,omitempty"`
	Delivery       json.RawMessage `json:"delivery,omitempty"`
	AccountLinking json.RawMessage `json:"account_linking,omitempty"`
	Referral       json.RawMessage `json:"referral,omitempty"`
}

// Event is the normalized decoding of one messaging item. Exactly one
// kind is assigned per item.
type Event struct {
	Kind      EventKind
	ChannelID string
	SenderID  string

	Text              string // message text, when Kind is message or quick_reply
	QuickReplyPayload string // when Kind is quick_reply
	PostbackPayload   string // when Kind is postback

	// Item is the raw messaging item, kept for receipt/linking/referral
	// kinds whose sub-objects the dispatcher never interprets.
	Item *MessagingItem
}

// Classify maps a webhook body into an ordered event list. Callers
// verify the envelope's object type is "page" before calling; echoed
// outbound messages are suppressed unless broadcastEchoes is set.
// Pure function: no side effects.
func Classify(body *WebhookBody, broadcastEchoes bool) []Event {
	var events []Event
	for ei := range body.Entry {
		entry := &body.Entry[ei]
		for mi := range entry.Messaging {
			item := &entry.Messaging[mi]

			if item.Message != nil && item.Message.IsEcho && !broadcastEchoes {
				continue
			}

			ev := Event{
				ChannelID: entry.ID,
				SenderID:  item.Sender.ID,
				Item:      item,
			}

			switch {
			case item.Message != nil && item.Message.Text != "" && item.Message.QuickReply != nil:
				ev.Kind = EventQuickReply
				ev.Text = item.Message.Text
				ev.QuickReplyPayload = item.Message.QuickReply.Payload
			case item.Message != nil && item.Message.Text != "":
				ev.Kind = EventMessage
				ev.Text = item.Message.Text
			case item.Postback != nil:
				ev.Kind = EventPostback
				ev.PostbackPayload = item.Postback.Payload
			case item.Read != nil:
				ev.Kind = EventRead
			case item.Delivery != nil:
				ev.Kind = EventDelivery
			case item.AccountLinking != nil:
				ev.Kind = EventAccountLinking
			case item.Referral != nil:
				ev.Kind = EventReferral
			default:
				ev.Kind = EventUnknown
			}

			events = append(events, ev)
		}
	}
	return events
}
