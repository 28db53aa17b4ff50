// Package client talks to the agent API: streamed and one-shot chat turns
// and the agent directory.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/ashureev/agentstream/internal/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	streamPath    = "/api/agents/interact/stream"
	oneShotPath   = "/api/agents/interact"
	agentsPath    = "/api/agents/getAgentIds"
	websocketPath = "/ws/agents/interact"

	// NoReply is returned by SubmitOneShot when the server sent an empty reply.
	NoReply = "No response from agent"

	maxJSONBodySize = 1 << 20 // 1MB
)

// Config holds client configuration. BaseURL is required.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	StrictEOF      bool
	ReadSize       int
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client is an agent API client. It holds no per-conversation state.
type Client struct {
	baseURL    string
	timeout    time.Duration
	decodeOpts []stream.Option
	http       *http.Client
	logger     *slog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.RequestTimeout,
		decodeOpts: []stream.Option{
			stream.WithStrictEOF(cfg.StrictEOF),
			stream.WithReadSize(cfg.ReadSize),
			stream.WithLogger(logger),
		},
		http:   httpClient,
		logger: logger,
	}, nil
}

// SubmitStreamed sends one streamed turn. onChunk receives each incremental
// piece of text in arrival order; onError is called at most once with the
// terminal failure, which is also returned. A nil return means the stream
// reached [DONE] or ended cleanly.
func (c *Client) SubmitStreamed(ctx context.Context, text, agentID string, onChunk func(string), onError func(error)) error {
	return c.submit(ctx, "agent.SubmitStreamed", agentID, onChunk, onError, func(ctx context.Context) (*stream.Decoder, io.Closer, error) {
		return c.OpenStream(ctx, text, agentID)
	})
}

// SubmitWebSocket is SubmitStreamed over the WebSocket endpoint.
func (c *Client) SubmitWebSocket(ctx context.Context, text, agentID string, onChunk func(string), onError func(error)) error {
	return c.submit(ctx, "agent.SubmitWebSocket", agentID, onChunk, onError, func(ctx context.Context) (*stream.Decoder, io.Closer, error) {
		return c.StreamWebSocket(ctx, text, agentID)
	})
}

type openFunc func(ctx context.Context) (*stream.Decoder, io.Closer, error)

func (c *Client) submit(ctx context.Context, spanName, agentID string, onChunk func(string), onError func(error), open openFunc) (err error) {
	ctx, span := tracer.Start(ctx, spanName)
	span.SetAttributes(attribute.String("agent.id", agentID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if onError != nil {
				onError(err)
			}
		}
		span.End()
	}()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	dec, body, err := open(ctx)
	if err != nil {
		return err
	}
	defer c.closeBody(body)

	chunks := 0
	for ev := range dec.Events() {
		switch ev.Type {
		case stream.EventChunk:
			chunks++
			if onChunk != nil {
				onChunk(ev.Text)
			}
		case stream.EventDone:
			c.logger.Debug("Agent stream completed", "agent_id", agentID, "stream_chunks", chunks)
		case stream.EventError:
			c.logger.Warn("Agent stream failed", "agent_id", agentID, "stream_chunks", chunks, "error", ev.Err)
			return ev.Err
		}
	}
	span.SetAttributes(attribute.Int("agent.stream_chunks", chunks))
	return nil
}

// OpenStream dispatches a streamed turn and returns a decoder over the
// response. The caller must close the returned body. Status failures are
// reported by the decoder as its single event.
func (c *Client) OpenStream(ctx context.Context, text, agentID string) (*stream.Decoder, io.Closer, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, streamPath, domain.ChatRequest{Message: text, AgentID: agentID})
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Info("Agent chat request", "agent_id", agentID, "message_length", len(text), "streamed", true)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &stream.TransportError{Err: err}
	}
	return stream.NewResponseDecoder(resp, c.decodeOpts...), resp.Body, nil
}

// SubmitOneShot sends a single non-streamed turn and returns the reply text.
func (c *Client) SubmitOneShot(ctx context.Context, text, agentID string) (reply string, err error) {
	ctx, span := tracer.Start(ctx, "agent.SubmitOneShot")
	span.SetAttributes(attribute.String("agent.id", agentID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.newJSONRequest(ctx, http.MethodPost, oneShotPath, domain.ChatRequest{Message: text, AgentID: agentID})
	if err != nil {
		return "", err
	}

	c.logger.Info("Agent chat request", "agent_id", agentID, "message_length", len(text), "streamed", false)
	var body domain.ChatReply
	if err := c.doJSON(req, &body); err != nil {
		return "", err
	}
	if body.Reply == nil || *body.Reply == "" {
		return NoReply, nil
	}
	return *body.Reply, nil
}

// ListAgents fetches the agent directory.
func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "agent.ListAgents")
	defer span.End()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+agentsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	injectTraceHeaders(ctx, req.Header)

	var list domain.AgentList
	if err := c.doJSON(req, &list); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// An absent or null agentInfo is not a listing; an empty array is.
	if list.AgentInfo == nil {
		err := &stream.ProtocolError{Message: "agent listing has no agentInfo array"}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	agents := make([]domain.Agent, 0, len(list.AgentInfo))
	for _, a := range list.AgentInfo {
		if a.ID == "" {
			continue
		}
		a.Name = a.DisplayName()
		agents = append(agents, a)
	}
	return agents, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, v any) (*http.Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	injectTraceHeaders(ctx, req.Header)
	return req, nil
}

// doJSON performs req and decodes a JSON body into v. Status and network
// failures are TransportErrors, undecodable bodies are ProtocolErrors.
func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &stream.TransportError{Err: err}
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &stream.TransportError{StatusCode: resp.StatusCode, Err: errorBody(resp.Body)}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBodySize)).Decode(v); err != nil {
		return &stream.ProtocolError{Message: "decode response body", Err: err}
	}
	return nil
}

// errorBody extracts {"error": "..."} from a failed response, if present.
func errorBody(r io.Reader) error {
	var body domain.ChatReply
	if err := json.NewDecoder(io.LimitReader(r, maxJSONBodySize)).Decode(&body); err != nil {
		return nil
	}
	if body.Error == nil || *body.Error == "" {
		return nil
	}
	return errors.New(*body.Error)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		c.logger.Debug("failed to close response body", "error", err)
	}
}
