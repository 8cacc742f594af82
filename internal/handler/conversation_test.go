package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"support-widget/internal/credential"
	"support-widget/internal/intercom"
	"support-widget/internal/intercom/intercomtest"
	"support-widget/internal/model"
	"support-widget/internal/support"
)

type fixture struct {
	router   *gin.Engine
	provider *intercomtest.Server
	token    *string
}

// tokenSource lets a test flip the credential between requests.
type tokenSource struct{ token *string }

func (s tokenSource) Token() (string, error) { return *s.token, nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := intercomtest.NewServer("tok")
	t.Cleanup(provider.Close)

	token := "tok"
	creds := tokenSource{token: &token}
	client := intercom.NewClient(intercom.Options{BaseURL: provider.URL, Credentials: creds})
	h := &ConversationHandler{
		Service:     support.NewService(client, nil),
		Credentials: creds,
		Now:         func() time.Time { return time.Unix(1800000000, 0) },
	}

	r := gin.New()
	r.GET("/conversations", h.Fetch)
	r.POST("/conversations", h.Send)
	return &fixture{router: r, provider: provider, token: &token}
}

func (f *fixture) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func messagesOf(t *testing.T, resp map[string]any) []map[string]any {
	t.Helper()
	raw, ok := resp["messages"].([]any)
	if !ok {
		t.Fatalf("expected messages array, got %v", resp["messages"])
	}
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]any))
	}
	return out
}

func TestSend_CreatesConversation(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"messages": []map[string]any{{"content": "Hi", "userId": "a@b.com"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	id, _ := resp["conversationId"].(string)
	if id == "" {
		t.Fatalf("expected conversationId, got %v", resp)
	}
	msgs := messagesOf(t, resp)
	if len(msgs) != 1 || msgs[0]["role"] != "user" || msgs[0]["content"] != "Hi" || msgs[0]["userId"] != "a@b.com" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	conv, _ := resp["conversation"].(map[string]any)
	if conv["id"] != id || conv["state"] != "open" {
		t.Fatalf("expected provider document, got %v", conv)
	}

	if n := f.provider.Count(http.MethodPost, "/contacts"); n != 1 {
		t.Fatalf("expected 1 contact create, got %d", n)
	}
	if n := f.provider.Count(http.MethodPost, "/conversations"); n != 1 {
		t.Fatalf("expected 1 conversation create, got %d", n)
	}
	for _, call := range f.provider.Calls() {
		if strings.HasSuffix(call, "/parts") {
			t.Fatalf("reply path must not be used: %v", f.provider.Calls())
		}
	}
}

func TestSend_CreateReceiptReturnsConversation(t *testing.T) {
	f := newFixture(t)
	f.provider.ReceiptOnCreate(true)

	w, resp := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"messages": []map[string]any{{"content": "Hi", "userId": "a@b.com"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	id, _ := resp["conversationId"].(string)
	if !strings.HasPrefix(id, "conv-") {
		t.Fatalf("expected a conversation id, got %q", id)
	}
	msgs := messagesOf(t, resp)
	if len(msgs) != 1 || msgs[0]["role"] != "user" || msgs[0]["content"] != "Hi" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	if n := f.provider.Count(http.MethodGet, "/conversations/"+id); n != 1 {
		t.Fatalf("expected the receipt to be read back once, got %d", n)
	}
}

func TestSend_RepliesToExistingConversation(t *testing.T) {
	f := newFixture(t)

	_, first := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"messages": []map[string]any{{"content": "Hi", "userId": "a@b.com"}},
	})
	id := first["conversationId"].(string)
	f.provider.AdminReply(id, "Hello, how can we help?")
	before := len(f.provider.Calls())

	w, resp := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"conversationId": id,
		"messages": []map[string]any{
			{"content": "Hi", "userId": "a@b.com", "role": "user"},
			{"content": "My order is late", "userId": "a@b.com", "role": "user"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["conversationId"] != id {
		t.Fatalf("expected conversationId %s, got %v", id, resp["conversationId"])
	}

	calls := f.provider.Calls()[before:]
	if len(calls) != 3 || calls[1] != "POST /conversations/"+id+"/parts" || calls[2] != "GET /conversations/"+id {
		t.Fatalf("expected reply then fetch, got %v", calls)
	}
	if n := f.provider.Count(http.MethodPost, "/conversations"); n != 2 {
		t.Fatalf("expected one create plus one reply, got %d", n)
	}

	msgs := messagesOf(t, resp)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %v", msgs)
	}
	if msgs[1]["role"] != "bot" || msgs[2]["content"] != "My order is late" {
		t.Fatalf("unexpected transcript: %v", msgs)
	}
}

func TestSend_UpstreamFailureEchoesHistory(t *testing.T) {
	f := newFixture(t)
	f.provider.Fail("POST /contacts", http.StatusInternalServerError)

	w, resp := f.do(t, http.MethodPost, "/conversations",
		`{"messages":[{"id":"m1","content":"Hi","userId":"a@b.com","extra":{"x":1}}]}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}

	msgs := messagesOf(t, resp)
	if len(msgs) != 2 {
		t.Fatalf("expected input plus one apology, got %v", msgs)
	}
	if msgs[0]["id"] != "m1" || msgs[0]["extra"] == nil {
		t.Fatalf("expected input echoed verbatim, got %v", msgs[0])
	}
	apology := msgs[1]
	if apology["role"] != model.RoleBot || apology["userId"] != model.SystemUserID || apology["content"] != model.ApologyText {
		t.Fatalf("unexpected apology: %v", apology)
	}
	if apology["timestamp"] != float64(1800000000) || apology["id"] == "" {
		t.Fatalf("unexpected apology metadata: %v", apology)
	}
	if errMsg, _ := resp["error"].(string); errMsg == "" {
		t.Fatalf("expected error detail")
	}
	debug, _ := resp["debug"].(map[string]any)
	if debug["context_used"] != false || debug["error"] != resp["error"] {
		t.Fatalf("unexpected debug: %v", debug)
	}
}

func TestSend_ReplyFailureOnUnknownConversation(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"conversationId": "does-not-exist",
		"messages":       []map[string]any{{"content": "Hi", "userId": "a@b.com"}},
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if msgs := messagesOf(t, resp); len(msgs) != 2 {
		t.Fatalf("expected input plus apology, got %v", msgs)
	}
	if n := f.provider.Count(http.MethodPost, "/conversations"); n != 1 {
		t.Fatalf("expected only the reply attempt, got %v", f.provider.Calls())
	}
}

func TestSend_InvalidRequests(t *testing.T) {
	f := newFixture(t)

	cases := []any{
		`not json`,
		map[string]any{"messages": []any{}},
		map[string]any{},
		map[string]any{"messages": []map[string]any{{"content": "", "userId": "a@b.com"}}},
		map[string]any{"messages": []map[string]any{{"content": "Hi"}}},
		map[string]any{"messages": []map[string]any{{"content": "Hi", "userId": "a@b.com"}, {"content": "no user"}}},
		map[string]any{"messages": []any{"just a string"}},
	}
	for _, body := range cases {
		w, resp := f.do(t, http.MethodPost, "/conversations", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d: %s", body, w.Code, w.Body.String())
		}
		if resp["code"] != "invalid_request" {
			t.Fatalf("unexpected body: %v", resp)
		}
	}
	if n := len(f.provider.Calls()); n != 0 {
		t.Fatalf("expected no provider calls, got %v", f.provider.Calls())
	}
}

func TestSend_NotConfigured(t *testing.T) {
	f := newFixture(t)
	*f.token = ""

	w, resp := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"messages": []map[string]any{{"content": "Hi", "userId": "a@b.com"}},
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp["code"] != "configuration_error" || resp["error"] != credential.ErrNotConfigured.Error() {
		t.Fatalf("unexpected body: %v", resp)
	}
	if n := len(f.provider.Calls()); n != 0 {
		t.Fatalf("expected no provider calls, got %d", n)
	}
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	_, created := f.do(t, http.MethodPost, "/conversations", map[string]any{
		"messages": []map[string]any{{"content": "Hi", "userId": "a@b.com"}},
	})
	id := created["conversationId"].(string)
	f.provider.AdminReply(id, "Hello!")

	w, resp := f.do(t, http.MethodGet, "/conversations?conversationId="+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["conversationId"] != id {
		t.Fatalf("unexpected id: %v", resp["conversationId"])
	}
	msgs := messagesOf(t, resp)
	if len(msgs) != 2 || msgs[0]["role"] != "user" || msgs[1]["role"] != "bot" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	author, _ := msgs[1]["author"].(map[string]any)
	if author["type"] != "admin" || msgs[1]["userId"] != "" {
		t.Fatalf("unexpected agent message: %v", msgs[1])
	}
}

func TestFetch_MissingID(t *testing.T) {
	f := newFixture(t)
	w, resp := f.do(t, http.MethodGet, "/conversations", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp["error"] != "conversationId is required" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if n := len(f.provider.Calls()); n != 0 {
		t.Fatalf("expected no provider calls, got %d", n)
	}
}

func TestFetch_NotConfigured(t *testing.T) {
	f := newFixture(t)
	*f.token = ""
	w, resp := f.do(t, http.MethodGet, "/conversations?conversationId=conv-1", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp["code"] != "configuration_error" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if n := len(f.provider.Calls()); n != 0 {
		t.Fatalf("expected no provider calls, got %d", n)
	}
}

func TestFetch_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	w, resp := f.do(t, http.MethodGet, "/conversations?conversationId=missing", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp["error"] != "Failed to retrieve conversation" || resp["status"] != float64(http.StatusNotFound) {
		t.Fatalf("unexpected body: %v", resp)
	}
	if details, _ := resp["details"].(string); !strings.Contains(details, "Resource Not Found") {
		t.Fatalf("expected provider detail, got %v", resp["details"])
	}
}
