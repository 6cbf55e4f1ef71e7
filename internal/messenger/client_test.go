package messenger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

func testClientLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// graphCall records one request the fake platform received.
type graphCall struct {
	Method string
	Path   string
	Token  string
	Body   map[string]any
}

// fakeGraph is an httptest server standing in for the platform API.
type fakeGraph struct {
	*httptest.Server
	mu    sync.Mutex
	calls []graphCall
}

func newFakeGraph(t *testing.T, status int, response string) *fakeGraph {
	t.Helper()
	fg := &fakeGraph{}
	fg.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := graphCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Token:  r.URL.Query().Get("access_token"),
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			json.Unmarshal(raw, &call.Body)
		}
		fg.mu.Lock()
		fg.calls = append(fg.calls, call)
		fg.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(fg.Close)
	return fg
}

func (fg *fakeGraph) Calls() []graphCall {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return append([]graphCall(nil), fg.calls...)
}

func testClient(fg *fakeGraph) *Client {
	return New(Config{APIBase: fg.URL, APIVersion: "v2.12", Logger: testClientLogger()})
}

func TestSendMessage_WrapsTextAndDefaults(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{"message_id":"m1"}`)
	c := testClient(fg)

	if err := c.SendTextMessage(context.Background(), "tok-1", "user-1", "hello", nil); err != nil {
		t.Fatal(err)
	}

	calls := fg.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	call := calls[0]
	if call.Path != "/v2.12/me/messages" {
		t.Errorf("unexpected path %s", call.Path)
	}
	if call.Token != "tok-1" {
		t.Errorf("token not threaded: %s", call.Token)
	}
	msg := call.Body["message"].(map[string]any)
	if msg["text"] != "hello" {
		t.Errorf("text not wrapped: %+v", msg)
	}
	if call.Body["messaging_type"] != "RESPONSE" {
		t.Errorf("expected default RESPONSE, got %v", call.Body["messaging_type"])
	}
	rec := call.Body["recipient"].(map[string]any)
	if rec["id"] != "user-1" {
		t.Errorf("raw id not normalized to recipient object: %+v", rec)
	}
}

func TestSendMessage_StructuredRecipientAndOptions(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)

	err := c.SendTextMessage(context.Background(), "tok", Recipient{ID: "user-2"}, "hi", &SendOptions{
		MessagingType:    "MESSAGE_TAG",
		NotificationType: "SILENT_PUSH",
		Tag:              "ACCOUNT_UPDATE",
	})
	if err != nil {
		t.Fatal(err)
	}

	call := fg.Calls()[0]
	if call.Body["messaging_type"] != "MESSAGE_TAG" {
		t.Errorf("messaging_type override lost: %v", call.Body["messaging_type"])
	}
	if call.Body["notification_type"] != "SILENT_PUSH" || call.Body["tag"] != "ACCOUNT_UPDATE" {
		t.Errorf("options lost: %+v", call.Body)
	}
	if call.Body["recipient"].(map[string]any)["id"] != "user-2" {
		t.Errorf("structured recipient mangled: %+v", call.Body["recipient"])
	}
}

func TestSendMessage_NormalizesQuickReplies(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)

	msg := Message{Text: "pick one", QuickReplies: []QuickReply{{Title: "Talk to a person!"}}}
	if err := c.SendMessage(context.Background(), "tok", "u1", msg, nil); err != nil {
		t.Fatal(err)
	}

	body := fg.Calls()[0].Body["message"].(map[string]any)
	qrs := body["quick_replies"].([]any)
	qr := qrs[0].(map[string]any)
	if qr["content_type"] != "text" || qr["payload"] != "QUICK_REPLY_TALKTOAPERSON" {
		t.Errorf("quick reply not normalized: %+v", qr)
	}
}

func TestSendMessage_TypingSequencePrecedesSend(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)

	err := c.SendTextMessage(context.Background(), "tok", "u1", "yo", &SendOptions{
		Typing:         true,
		TypingDuration: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	calls := fg.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected typing_on, typing_off, send; got %d calls", len(calls))
	}
	if calls[0].Body["sender_action"] != "typing_on" || calls[1].Body["sender_action"] != "typing_off" {
		t.Errorf("typing sequence wrong: %+v", calls)
	}
	if _, ok := calls[2].Body["message"]; !ok {
		t.Error("message must be sent after the typing sequence")
	}
}

func TestSendAction(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)

	if err := c.SendAction(context.Background(), "tok", "u1", ActionMarkSeen); err != nil {
		t.Fatal(err)
	}
	call := fg.Calls()[0]
	if call.Body["sender_action"] != "mark_seen" {
		t.Errorf("unexpected body: %+v", call.Body)
	}
	if _, ok := call.Body["message"]; ok {
		t.Error("sender actions carry no message body")
	}
}

func TestClampTypingDelay(t *testing.T) {
	logger := testClientLogger()
	if d := clampTypingDelay(25*time.Second, logger); d != maxTypingDelay {
		t.Errorf("expected clamp to 20s, got %v", d)
	}
	if d := clampTypingDelay(-5*time.Second, logger); d != 0 {
		t.Errorf("invalid duration should wait zero, got %v", d)
	}
	if d := clampTypingDelay(3*time.Second, logger); d != 3*time.Second {
		t.Errorf("in-range duration should pass through, got %v", d)
	}
}

func TestAutoTypingDelay(t *testing.T) {
	if d := autoTypingDelay(Message{Text: "12345"}); d != 50*time.Millisecond {
		t.Errorf("expected 10ms per character, got %v", d)
	}
	if d := autoTypingDelay(Message{QuickReplies: []QuickReply{{Title: "x"}}}); d != time.Second {
		t.Errorf("non-text messages default to 1s, got %v", d)
	}
}

func TestSetPersistentMenu_FormatsButtons(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{"result":"success"}`)
	c := testClient(fg)

	buttons := []Button{{Title: "FAQs", Payload: "MENU_FAQ"}, {Title: "Talk to a person"}}
	if err := c.SetPersistentMenu(context.Background(), "tok", buttons, false); err != nil {
		t.Fatal(err)
	}

	call := fg.Calls()[0]
	if call.Path != "/v2.12/me/messenger_profile" {
		t.Errorf("unexpected path %s", call.Path)
	}
	menus := call.Body["persistent_menu"].([]any)
	menu := menus[0].(map[string]any)
	if menu["locale"] != "default" {
		t.Errorf("flat button list must be wrapped in default locale: %+v", menu)
	}
	ctas := menu["call_to_actions"].([]any)
	second := ctas[1].(map[string]any)
	if second["type"] != "postback" || second["payload"] != "BUTTON_TALKTOAPERSON" {
		t.Errorf("button not auto-formatted: %+v", second)
	}
}

func TestSetLocalizedPersistentMenu_SentUnmodified(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)

	menus := []PersistentMenu{{Locale: "fr_FR", CallToActions: []Button{{Type: "postback", Title: "Aide", Payload: "HELP"}}}}
	if err := c.SetLocalizedPersistentMenu(context.Background(), "tok", menus); err != nil {
		t.Fatal(err)
	}

	sent := fg.Calls()[0].Body["persistent_menu"].([]any)[0].(map[string]any)
	if sent["locale"] != "fr_FR" {
		t.Errorf("localized menu must pass through: %+v", sent)
	}
}

func TestProfileDeletes(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{"result":"success"}`)
	c := testClient(fg)
	ctx := context.Background()

	if err := c.DeletePersistentMenu(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteGetStartedButton(ctx, "tok"); err != nil {
		t.Fatal(err)
	}

	calls := fg.Calls()
	if calls[0].Method != http.MethodDelete || calls[1].Method != http.MethodDelete {
		t.Errorf("profile removals use DELETE: %+v", calls)
	}
	fields := calls[1].Body["fields"].([]any)
	if fields[0] != "get_started" {
		t.Errorf("unexpected fields: %+v", fields)
	}
}

func TestSetGetStartedButton_DefaultPayload(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)

	if err := c.SetGetStartedButton(context.Background(), "tok", ""); err != nil {
		t.Fatal(err)
	}
	gs := fg.Calls()[0].Body["get_started"].(map[string]any)
	if gs["payload"] != "GET_STARTED" {
		t.Errorf("expected GET_STARTED default, got %v", gs["payload"])
	}
}

func TestGetUserProfile(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{"id":"42","first_name":"Maria","last_name":"Santos","gender":"female"}`)
	c := testClient(fg)

	p, err := c.GetUserProfile(context.Background(), "tok", "42")
	if err != nil {
		t.Fatal(err)
	}
	if p.FirstName != "Maria" || p.Gender != "female" {
		t.Errorf("unexpected profile: %+v", p)
	}

	call := fg.Calls()[0]
	if call.Path != "/v2.12/42" {
		t.Errorf("unexpected path %s", call.Path)
	}
}

func TestSendRequest_PlatformError(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`)
	c := testClient(fg)

	err := c.SendTextMessage(context.Background(), "bad-tok", "u1", "hello", nil)
	if err == nil {
		t.Fatal("platform error object must surface as an error")
	}
}

func TestSendRequest_TransportError(t *testing.T) {
	fg := newFakeGraph(t, http.StatusOK, `{}`)
	c := testClient(fg)
	fg.Close() // connection refused from here on

	if err := c.SendTextMessage(context.Background(), "tok", "u1", "hello", nil); err == nil {
		t.Fatal("transport failure must surface as an error")
	}
}
