package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

const finalAnswerJSON = `{"id":"c1","model":"deepseek-chat","choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":100,"completion_tokens":50,"total_tokens":150}}`

// flakyTransport fails the first n round trips with err, then delegates.
type flakyTransport struct {
	failures int32
	err      error
	calls    atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return f.next.RoundTrip(req)
}

type recordedSleeps struct{ delays []time.Duration }

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestClient(url string, hc *http.Client, sleeps *recordedSleeps) *Client {
	retry := DefaultRetryPolicy()
	if sleeps != nil {
		retry.Sleep = sleeps.sleep
	}
	return NewClient(Options{
		Name:          "deepseek",
		BaseURL:       url,
		Model:         "deepseek-chat",
		ReasonerModel: "deepseek-reasoner",
		Keys:          func(context.Context) string { return "sk-test" },
		Retry:         retry,
		HTTPClient:    hc,
	})
}

func TestClient_ChatCompletion_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "deepseek-chat" || req.Stream {
			t.Errorf("unexpected request model=%q stream=%v", req.Model, req.Stream)
		}
		w.Header().Set(headerContentType, mimeJSON)
		_, _ = io.WriteString(w, finalAnswerJSON)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL+"/", nil, nil)
	resp, err := c.ChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion error = %v", err)
	}
	if resp.Choices[0].Message.Content != "Hello!" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if resp.Usage.PromptTokens != 100 || resp.Usage.CompletionTokens != 50 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

// Two connection resets, then success on the third attempt.
func TestClient_RetriesConnectionResetThenSucceeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, finalAnswerJSON)
	}))
	defer srv.Close()

	ft := &flakyTransport{
		failures: 2,
		err:      &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
		next:     http.DefaultTransport,
	}
	sleeps := &recordedSleeps{}
	c := newTestClient(srv.URL, &http.Client{Transport: ft}, sleeps)

	resp, err := c.ChatCompletion(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("ChatCompletion error = %v", err)
	}
	if resp.Choices[0].Message.Content != "Hello!" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if got := ft.calls.Load(); got != 3 {
		t.Errorf("round trips = %d; want 3", got)
	}
	if len(sleeps.delays) != 2 || sleeps.delays[0] != 2*time.Second || sleeps.delays[1] != 4*time.Second {
		t.Errorf("backoff = %v; want [2s 4s]", sleeps.delays)
	}
}

func TestClient_RetriesExhaustedIsUnavailable(t *testing.T) {
	t.Parallel()

	ft := &flakyTransport{
		failures: 10,
		err:      &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
		next:     http.DefaultTransport,
	}
	c := newTestClient("http://provider.invalid", &http.Client{Transport: ft}, &recordedSleeps{})

	_, err := c.Complete(context.Background(), []byte(`{}`))
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if got := ft.calls.Load(); got != 3 {
		t.Errorf("round trips = %d; want 3 (1 + 2 retries)", got)
	}
}

func TestClient_HTTPErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	longBody := strings.Repeat("x", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, longBody, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil, &recordedSleeps{})
	_, err := c.Complete(context.Background(), []byte(`{}`))

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", perr.StatusCode)
	}
	if len(perr.Body) > maxErrorBody+len("...(truncated)") || !strings.HasSuffix(perr.Body, "...(truncated)") {
		t.Errorf("body not truncated: %d bytes", len(perr.Body))
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", calls.Load())
	}
}

func TestClient_NonConnectionErrorNotRetried(t *testing.T) {
	t.Parallel()

	ft := &flakyTransport{failures: 5, err: errors.New("tls: bad certificate"), next: http.DefaultTransport}
	c := newTestClient("https://provider.invalid", &http.Client{Transport: ft}, &recordedSleeps{})

	_, err := c.Complete(context.Background(), []byte(`{}`))
	if err == nil || errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected raw error, got %v", err)
	}
	if ft.calls.Load() != 1 {
		t.Errorf("round trips = %d; want 1", ft.calls.Load())
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"not json":   `<html>gateway</html>`,
		"no choices": `{"choices":[]}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		c := newTestClient(srv.URL, nil, nil)
		_, err := c.ChatCompletion(context.Background(), ChatRequest{})
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("%s: expected ErrMalformedResponse, got %v", name, err)
		}
		srv.Close()
	}
}

func TestClient_KeyResolvedPerCall(t *testing.T) {
	t.Parallel()

	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, finalAnswerJSON)
	}))
	defer srv.Close()

	key := "sk-one"
	c := NewClient(Options{Name: "deepseek", BaseURL: srv.URL, Model: "m", Keys: func(context.Context) string { return key }})
	if _, err := c.Complete(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("first call: %v", err)
	}
	key = "sk-two"
	if _, err := c.Complete(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(seen) != 2 || seen[0] != "Bearer sk-one" || seen[1] != "Bearer sk-two" {
		t.Errorf("Authorization headers = %v", seen)
	}

	key = ""
	if _, err := c.Complete(context.Background(), []byte(`{}`)); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewClient_DefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{Name: "deepseek", Model: "m"})
	if c.retry.MaxRetries != 2 || c.retry.delay(0) != 2*time.Second || c.retry.delay(1) != 4*time.Second {
		t.Errorf("unexpected default retry policy %+v", c.retry)
	}
	if c.retry.Sleep == nil {
		t.Error("default policy must carry a sleep func")
	}
}

func TestClient_ModelSelection(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{Name: "siliconflow", Model: "chat", ThinkingFlag: true})
	if c.Model(false) != "chat" || c.Model(true) != "chat" {
		t.Errorf("reasoner model should fall back to the chat model")
	}
	if !c.ThinkingFlag() {
		t.Error("ThinkingFlag() = false")
	}
}

func TestMessage_ReasoningContentAlwaysSerializedWhenSet(t *testing.T) {
	t.Parallel()

	msg := Message{
		Role:             RoleAssistant,
		ReasoningContent: StringPtr(""),
		ToolCalls: []openai.ToolCall{{
			ID: "call_1", Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: "get_current_time", Arguments: `{}`},
		}},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"reasoning_content":""`) {
		t.Errorf("reasoning_content missing: %s", raw)
	}

	raw, _ = json.Marshal(Message{Role: RoleUser, Content: "hi"})
	if strings.Contains(string(raw), "reasoning_content") || strings.Contains(string(raw), "tool_calls") {
		t.Errorf("unexpected optional fields: %s", raw)
	}
}

func TestIsConnectionError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{syscall.ECONNREFUSED, true},
		{&net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{syscall.ECONNABORTED, true},
		{io.ErrUnexpectedEOF, true},
		{errors.New("Connection prematurely closed"), true},
		{errors.New("tls handshake failure"), false},
		{context.Canceled, false},
	}
	for _, tc := range cases {
		if got := IsConnectionError(tc.err); got != tc.want {
			t.Errorf("IsConnectionError(%v) = %v; want %v", tc.err, got, tc.want)
		}
	}
}
