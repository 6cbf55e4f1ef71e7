package messenger

import (
	"encoding/json"
	"testing"
)

func decodeBody(t *testing.T, raw string) *WebhookBody {
	t.Helper()
	var body WebhookBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatal(err)
	}
	return &body
}

func TestClassify_EchoSuppressed(t *testing.T) {
	body := decodeBody(t, `{
		"object": "page",
		"entry": [{"id": "page-1", "messaging": [
			{"sender": {"id": "page-1"}, "message": {"text": "hi", "is_echo": true}}
		]}]
	}`)

	if events := Classify(body, false); len(events) != 0 {
		t.Errorf("echoed message should be suppressed, got %d events", len(events))
	}

	events := Classify(body, true)
	if len(events) != 1 || events[0].Kind != EventMessage {
		t.Errorf("broadcast-echo flag should reprocess echoes, got %+v", events)
	}
}

func TestClassify_QuickReplyPrecedence(t *testing.T) {
	body := decodeBody(t, `{
		"object": "page",
		"entry": [{"id": "page-1", "messaging": [
			{"sender": {"id": "u1"}, "message": {"text": "Question #1", "quick_reply": {"payload": "QUESTION_0"}}}
		]}]
	}`)

	events := Classify(body, false)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != EventQuickReply {
		t.Errorf("text plus quick_reply must classify as quick_reply, got %s", ev.Kind)
	}
	if ev.QuickReplyPayload != "QUESTION_0" {
		t.Errorf("unexpected payload %q", ev.QuickReplyPayload)
	}
	if ev.Text != "Question #1" {
		t.Errorf("unexpected text %q", ev.Text)
	}
}

func TestClassify_Message(t *testing.T) {
	body := decodeBody(t, `{
		"object": "page",
		"entry": [{"id": "page-1", "messaging": [
			{"sender": {"id": "u1"}, "message": {"text": "hello"}}
		]}]
	}`)

	events := Classify(body, false)
	if len(events) != 1 || events[0].Kind != EventMessage || events[0].Text != "hello" {
		t.Errorf("unexpected events: %+v", events)
	}
	if events[0].ChannelID != "page-1" || events[0].SenderID != "u1" {
		t.Errorf("identity fields lost: %+v", events[0])
	}
}

func TestClassify_Kinds(t *testing.T) {
	cases := []struct {
		name string
		item string
		want EventKind
	}{
		{"postback", `{"sender":{"id":"u1"},"postback":{"title":"FAQs","payload":"MENU_FAQ"}}`, EventPostback},
		{"read", `{"sender":{"id":"u1"},"read":{"watermark":1}}`, EventRead},
		{"delivery", `{"sender":{"id":"u1"},"delivery":{"watermark":1}}`, EventDelivery},
		{"account_linking", `{"sender":{"id":"u1"},"account_linking":{"status":"linked"}}`, EventAccountLinking},
		{"referral", `{"sender":{"id":"u1"},"referral":{"ref":"ad"}}`, EventReferral},
		{"unknown", `{"sender":{"id":"u1"}}`, EventUnknown},
		{"textless message", `{"sender":{"id":"u1"},"message":{"mid":"m1"}}`, EventUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := decodeBody(t, `{"object":"page","entry":[{"id":"page-1","messaging":[`+tc.item+`]}]}`)
			events := Classify(body, false)
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].Kind != tc.want {
				t.Errorf("expected %s, got %s", tc.want, events[0].Kind)
			}
		})
	}
}

func TestClassify_PostbackPayload(t *testing.T) {
	body := decodeBody(t, `{"object":"page","entry":[{"id":"page-1","messaging":[
		{"sender":{"id":"u1"},"postback":{"payload":"GET_STARTED"}}
	]}]}`)
	events := Classify(body, false)
	if len(events) != 1 || events[0].PostbackPayload != "GET_STARTED" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestClassify_MultipleEntriesInOrder(t *testing.T) {
	body := decodeBody(t, `{
		"object": "page",
		"entry": [
			{"id": "page-1", "messaging": [
				{"sender": {"id": "u1"}, "message": {"text": "first"}},
				{"sender": {"id": "u2"}, "message": {"text": "second"}}
			]},
			{"id": "page-2", "messaging": [
				{"sender": {"id": "u3"}, "postback": {"payload": "GET_STARTED"}}
			]}
		]
	}`)

	events := Classify(body, false)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Text != "first" || events[1].Text != "second" {
		t.Error("events out of order")
	}
	if events[2].ChannelID != "page-2" {
		t.Errorf("expected page-2, got %s", events[2].ChannelID)
	}
}

func TestClassify_Empty(t *testing.T) {
	if events := Classify(&WebhookBody{Object: "page"}, false); len(events) != 0 {
		t.Errorf("empty body should yield no events, got %d", len(events))
	}
}
