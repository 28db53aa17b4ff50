//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

type memRepo struct {
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func newMemRepo(agents ...*domain.Agent) *memRepo {
	r := &memRepo{agents: make(map[string]*domain.Agent)}
	for _, a := range agents {
		r.agents[a.ID] = a
	}
	return r
}

func (r *memRepo) ListAgents(context.Context) ([]*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[id], nil
}

func (r *memRepo) UpsertAgent(_ context.Context, a *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
	return nil
}

func (r *memRepo) CountAgents(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents), nil
}

func (r *memRepo) Ping(context.Context) error { return nil }
func (r *memRepo) Close() error               { return nil }

func chunksResponder(chunks []string, tail error) Responder {
	return ResponderFunc(func(_ context.Context, _ *domain.Agent, _ string) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for _, c := range chunks {
				if !yield(c, nil) {
					return
				}
			}
			if tail != nil {
				yield("", tail)
			}
		}
	})
}

func newTestRouter(t *testing.T, responder Responder, rateLimit int) http.Handler {
	t.Helper()
	repo := newMemRepo(&domain.Agent{ID: "agent-1", Name: "Zeek"}, &domain.Agent{ID: "agent-2", Name: "Luna"})
	h := NewHandler(repo, Options{Responder: responder, RateLimit: rateLimit, RateWindow: time.Minute})
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	h.RegisterHealth(r)
	h.RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHandleAgents(t *testing.T) {
	router := newTestRouter(t, nil, 10)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/agents/getAgentIds", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list domain.AgentList
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list.AgentInfo) != 2 {
		t.Fatalf("Expected 2 agents, got %d", len(list.AgentInfo))
	}
	if list.AgentInfo[0].ID != "agent-2" || list.AgentInfo[0].Name != "Luna" {
		t.Errorf("Unexpected first agent: %+v", list.AgentInfo[0])
	}
}

func TestHandleInteract(t *testing.T) {
	router := newTestRouter(t, chunksResponder([]string{"he", "y"}, nil), 10)

	w := post(t, router, "/api/agents/interact", `{"message":"hi","agentId":"agent-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var reply domain.ChatReply
	if err := json.NewDecoder(w.Body).Decode(&reply); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if reply.Reply == nil || *reply.Reply != "hey" {
		t.Errorf("Expected reply \"hey\", got %v", reply.Reply)
	}
}

func TestHandleInteractRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"invalid json", `{"message":`, http.StatusBadRequest, "invalid request body"},
		{"empty message", `{"message":"","agentId":"agent-1"}`, http.StatusBadRequest, "message is required"},
		{"missing agent id", `{"message":"hi"}`, http.StatusBadRequest, "agentId is required"},
		{"unknown agent", `{"message":"hi","agentId":"nobody"}`, http.StatusNotFound, "agent not found"},
	}

	router := newTestRouter(t, nil, 100)
	for _, path := range []string{"/api/agents/interact", "/api/agents/interact/stream"} {
		for _, tt := range tests {
			t.Run(path+"/"+tt.name, func(t *testing.T) {
				w := post(t, router, path, tt.body)
				if w.Code != tt.status {
					t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
				}
				var body map[string]string
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if body["error"] != tt.errMsg {
					t.Errorf("Expected error %q, got %q", tt.errMsg, body["error"])
				}
			})
		}
	}
}

func TestHandleInteractResponderFailure(t *testing.T) {
	router := newTestRouter(t, chunksResponder([]string{"partial"}, errors.New("model offline")), 10)

	w := post(t, router, "/api/agents/interact", `{"message":"hi","agentId":"agent-1"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model offline") {
		t.Errorf("Expected responder error in body, got %s", w.Body.String())
	}
}

func TestHandleInteractStream(t *testing.T) {
	router := newTestRouter(t, chunksResponder([]string{"Hel", "lo"}, nil), 10)

	w := post(t, router, "/api/agents/interact/stream", `{"message":"hi","agentId":"agent-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected event-stream content type, got %q", ct)
	}
	want := "data: {\"reply\":\"Hel\"}\n\ndata: {\"reply\":\"lo\"}\n\ndata: [DONE]\n\n"
	if got := w.Body.String(); got != want {
		t.Errorf("Unexpected stream body:\n got %q\nwant %q", got, want)
	}
}

func TestHandleInteractStreamError(t *testing.T) {
	router := newTestRouter(t, chunksResponder([]string{"a"}, errors.New("boom")), 10)

	w := post(t, router, "/api/agents/interact/stream", `{"message":"hi","agentId":"agent-1"}`)
	want := "data: {\"reply\":\"a\"}\n\ndata: {\"error\":\"boom\"}\n\n"
	if got := w.Body.String(); got != want {
		t.Errorf("Unexpected stream body:\n got %q\nwant %q", got, want)
	}
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, nil, 1)

	first := post(t, router, "/api/agents/interact", `{"message":"hi","agentId":"agent-1"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", first.Code)
	}
	second := post(t, router, "/api/agents/interact", `{"message":"hi","agentId":"agent-1"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", second.Code)
	}
}

func TestHandlerCloseIsIdempotent(t *testing.T) {
	h := NewHandler(newMemRepo(), Options{RateLimit: 1, RateWindow: time.Minute})

	h.Close()
	h.Close()

	rl := NewRateLimiter(1, time.Minute)
	rl.Close()
	rl.Close()
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, nil, 10)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestHandleWebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, chunksResponder([]string{"Hel", "lo"}, nil), 10))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/agents/interact", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, domain.ChatRequest{Message: "hi", AgentID: "agent-1"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var frames []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("Unexpected close: %v", err)
			}
			break
		}
		frames = append(frames, string(data))
	}

	want := []string{
		"data: {\"reply\":\"Hel\"}\n\n",
		"data: {\"reply\":\"lo\"}\n\n",
		"data: [DONE]\n\n",
	}
	if strings.Join(frames, "|") != strings.Join(want, "|") {
		t.Errorf("Unexpected frames: %q", frames)
	}
}

func TestEchoResponder(t *testing.T) {
	agent := &domain.Agent{ID: "agent-1", Greeting: "Hi!"}
	var got strings.Builder
	for chunk, err := range (EchoResponder{}).Respond(context.Background(), agent, "ls -la") {
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		got.WriteString(chunk)
	}
	if got.String() != "Hi! You said: ls -la" {
		t.Errorf("Unexpected reply %q", got.String())
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"a b", []string{"a ", "b"}},
		{"a  b ", []string{"a  ", "b "}},
	}
	for _, tt := range tests {
		got := SplitWords(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
