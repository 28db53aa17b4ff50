// Package api implements a development agent server speaking the chat wire
// protocol: one-shot JSON replies, SSE reply streams and a WebSocket variant.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/ashureev/agentstream/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the maximum allowed chat request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// requestError is a chat request rejection with its HTTP status.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

var errAgentNotFound = &requestError{status: http.StatusNotFound, message: "agent not found"}

// Options configures a Handler.
type Options struct {
	Responder  Responder
	ChunkDelay time.Duration
	RateLimit  int
	RateWindow time.Duration
	Logger     *slog.Logger
}

// Handler serves the agent API.
type Handler struct {
	repo        store.Repository
	responder   Responder
	rateLimiter *RateLimiter
	chunkDelay  time.Duration
	logger      *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, opts Options) *Handler {
	if opts.Responder == nil {
		opts.Responder = EchoResponder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		repo:        repo,
		responder:   opts.Responder,
		rateLimiter: NewRateLimiter(opts.RateLimit, opts.RateWindow),
		chunkDelay:  opts.ChunkDelay,
		logger:      opts.Logger,
	}
}

// RegisterRoutes registers agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agents", func(r chi.Router) {
		r.Get("/getAgentIds", h.HandleAgents)
		r.Post("/interact", h.HandleInteract)
		r.Post("/interact/stream", h.HandleInteractStream)
	})
	r.Get("/ws/agents/interact", h.HandleWebSocket)
}

// RegisterHealth registers the readiness endpoint.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := h.repo.Ping(r.Context()); err != nil {
			Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Close()
}

// HandleAgents handles GET /api/agents/getAgentIds.
func (h *Handler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgents(r.Context())
	if err != nil {
		h.logger.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	list := domain.AgentList{AgentInfo: make([]domain.Agent, 0, len(agents))}
	for _, a := range agents {
		list.AgentInfo = append(list.AgentInfo, *a)
	}
	JSON(w, http.StatusOK, list)
}

// HandleInteract handles POST /api/agents/interact with a single JSON reply.
func (h *Handler) HandleInteract(w http.ResponseWriter, r *http.Request) {
	req, agent, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	var reply strings.Builder
	for chunk, err := range h.responder.Respond(r.Context(), agent, req.Message) {
		if err != nil {
			h.logger.Warn("Agent reply failed", "agent_id", agent.ID, "error", err)
			Error(w, http.StatusBadGateway, err.Error())
			return
		}
		reply.WriteString(chunk)
	}
	text := reply.String()
	JSON(w, http.StatusOK, domain.ChatReply{Reply: &text})
}

// HandleInteractStream handles POST /api/agents/interact/stream with an SSE
// reply: one reply record per chunk, then [DONE], or an error record.
func (h *Handler) HandleInteractStream(w http.ResponseWriter, r *http.Request) {
	req, agent, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(record []byte) error {
		if err := writeRecord(w, record); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	chunks, err := h.streamReply(r.Context(), agent, req.Message, emit)
	if err != nil {
		h.logger.Warn("Agent stream ended early", "agent_id", agent.ID, "stream_chunks", chunks, "error", err)
		return
	}
	if err := writeDone(w); err != nil {
		h.logger.Warn("failed to write SSE done record", "error", err)
		return
	}
	flusher.Flush()
	h.logger.Info("Agent stream completed", "agent_id", agent.ID, "stream_chunks", chunks)
}

// HandleWebSocket handles GET /ws/agents/interact. The client sends one
// ChatRequest frame and receives event records as text frames.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.rateLimiter.Allow(clientIP(r)) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "turn ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(defaultMaxRequestBodySize)

	ctx := r.Context()
	emit := func(record []byte) error {
		return ws.Write(ctx, websocket.MessageText, record)
	}

	var req domain.ChatRequest
	if err := wsjson.Read(ctx, ws, &req); err != nil {
		h.logger.Warn("Invalid WebSocket chat request", "error", err)
		h.emitError(emit, "invalid request body")
		return
	}
	agent, err := h.resolve(ctx, req)
	if err != nil {
		h.emitError(emit, err.Error())
		return
	}

	chunks, err := h.streamReply(ctx, agent, req.Message, emit)
	if err != nil {
		h.logger.Warn("Agent stream ended early", "agent_id", agent.ID, "stream_chunks", chunks, "transport", "websocket", "error", err)
		return
	}
	if err := emit([]byte(doneRecord)); err != nil {
		h.logger.Warn("failed to write WebSocket done record", "error", err)
	}
}

// streamReply emits one reply record per responder chunk. A responder error
// is sent as an error record and returned.
func (h *Handler) streamReply(ctx context.Context, agent *domain.Agent, message string, emit func([]byte) error) (int, error) {
	chunks := 0
	for chunk, err := range h.responder.Respond(ctx, agent, message) {
		if err != nil {
			h.emitError(emit, err.Error())
			return chunks, err
		}
		record, err := replyRecord(chunk)
		if err != nil {
			h.emitError(emit, "failed to serialize response")
			return chunks, err
		}
		if err := emit(record); err != nil {
			return chunks, err
		}
		chunks++

		if h.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return chunks, ctx.Err()
			case <-time.After(h.chunkDelay):
			}
		}
	}
	return chunks, nil
}

func (h *Handler) emitError(emit func([]byte) error, message string) {
	record, err := errorRecord(message)
	if err != nil {
		h.logger.Warn("failed to marshal error record", "error", err)
		return
	}
	if err := emit(record); err != nil {
		h.logger.Warn("failed to write error record", "error", err)
	}
}

// decodeChat validates a chat request and resolves its agent, writing the
// HTTP error itself when it returns false.
func (h *Handler) decodeChat(w http.ResponseWriter, r *http.Request) (domain.ChatRequest, *domain.Agent, bool) {
	var req domain.ChatRequest

	if !h.rateLimiter.Allow(clientIP(r)) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return req, nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, nil, false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return req, nil, false
	}

	agent, err := h.resolve(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			status = reqErr.status
		}
		Error(w, status, err.Error())
		return req, nil, false
	}

	h.logger.Info("Agent chat request",
		"agent_id", agent.ID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)
	return req, agent, true
}

func (h *Handler) resolve(ctx context.Context, req domain.ChatRequest) (*domain.Agent, error) {
	if req.Message == "" {
		return nil, &requestError{status: http.StatusBadRequest, message: "message is required"}
	}
	if req.AgentID == "" {
		return nil, &requestError{status: http.StatusBadRequest, message: "agentId is required"}
	}
	agent, err := h.repo.GetAgent(ctx, req.AgentID)
	if err != nil {
		h.logger.Error("Failed to look up agent", "agent_id", req.AgentID, "error", err)
		return nil, errors.New("failed to look up agent")
	}
	if agent == nil {
		return nil, errAgentNotFound
	}
	return agent, nil
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode JSON response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
