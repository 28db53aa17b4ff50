// Package chat drives a single conversation: agent selection, streamed and
// one-shot turns, and the agent directory bootstrap.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/ashureev/agentstream/internal/transcript"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notices appended to the transcript by the session itself.
const (
	NoticeSelectAgent = "Please select an agent first."
	NoticeAgentsLoad  = "Failed to load agents. Using defaults."
)

var (
	// ErrNoAgent is returned when a turn is submitted with no agent selected.
	ErrNoAgent = errors.New("no agent selected")
	// ErrBusy is returned when a turn is submitted while another is open.
	ErrBusy = errors.New("a turn is already in progress")
	// ErrUnknownAgent is returned by SelectAgent for IDs outside the directory.
	ErrUnknownAgent = errors.New("unknown agent")
)

var tracer = otel.Tracer("github.com/ashureev/agentstream/internal/chat")

// AgentClient is the transport a Session submits turns through.
type AgentClient interface {
	SubmitStreamed(ctx context.Context, text, agentID string, onChunk func(string), onError func(error)) error
	SubmitOneShot(ctx context.Context, text, agentID string) (string, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
}

// Options configures a Session.
type Options struct {
	// AgentID preselects an agent. Empty means the first agent of the
	// directory once it is loaded.
	AgentID string
	// OnChunk, if set, sees every streamed chunk after it reaches the
	// transcript.
	OnChunk func(string)
	Logger  *slog.Logger
}

// Session owns one transcript and runs one turn at a time against it.
type Session struct {
	client     AgentClient
	transcript *transcript.Transcript
	logger     *slog.Logger
	onChunk    func(string)
	busy       atomic.Bool

	mu      sync.RWMutex
	agents  []domain.Agent
	agentID string
}

// NewSession creates a session that starts with the built-in agent directory.
func NewSession(client AgentClient, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	agents := domain.DefaultAgents()
	agentID := opts.AgentID
	if agentID == "" {
		agentID = agents[0].ID
	}
	return &Session{
		client:     client,
		transcript: transcript.New(),
		logger:     logger,
		onChunk:    opts.OnChunk,
		agents:     agents,
		agentID:    agentID,
	}
}

// Transcript returns the session transcript for rendering.
func (s *Session) Transcript() *transcript.Transcript {
	return s.transcript
}

// Busy reports whether a turn is in progress.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Agents returns a copy of the current agent directory.
func (s *Session) Agents() []domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// AgentID returns the selected agent, empty if none.
func (s *Session) AgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentID
}

// SelectAgent switches the agent for subsequent turns. An empty id clears
// the selection.
func (s *Session) SelectAgent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.agentID = ""
		return nil
	}
	for _, a := range s.agents {
		if a.ID == id {
			s.agentID = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
}

// LoadAgents replaces the directory with the server listing. On failure the
// built-in directory stays and a notice is appended to the transcript. An
// empty listing is accepted as is.
func (s *Session) LoadAgents(ctx context.Context) error {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		s.logger.Warn("Failed to load agents", "error", err)
		s.transcript.AppendSystem(NoticeAgentsLoad)
		return err
	}

	s.mu.Lock()
	s.agents = agents
	if s.agentID == "" && len(agents) > 0 {
		s.agentID = agents[0].ID
	}
	s.mu.Unlock()

	s.logger.Debug("Loaded agents", "count", len(agents))
	return nil
}

// Send runs one streamed turn. The user message is appended first, chunks
// are folded into one agent message as they arrive, and a failure becomes a
// system message after whatever text already arrived. The terminal error is
// also returned.
func (s *Session) Send(ctx context.Context, text string) error {
	agentID, err := s.begin()
	if err != nil {
		return err
	}
	defer s.busy.Store(false)

	ctx, span := tracer.Start(ctx, "chat.Send", trace.WithAttributes(attribute.String("agent.id", agentID)))
	defer span.End()

	s.transcript.AppendUser(text)
	turn := s.transcript.BeginAgentTurn()
	logger := s.logger.With("agent_id", agentID, "turn_id", turn.String(), "trace_id", span.SpanContext().TraceID().String())

	onChunk := s.transcript.ApplyChunk
	if s.onChunk != nil {
		onChunk = func(chunk string) {
			s.transcript.ApplyChunk(chunk)
			s.onChunk(chunk)
		}
	}
	err = s.client.SubmitStreamed(ctx, text, agentID, onChunk, s.transcript.FailTurn)
	if err != nil {
		logger.Warn("Turn failed", "error", err)
		return err
	}
	s.transcript.FinalizeTurn()
	logger.Debug("Turn completed")
	return nil
}

// SendOneShot runs one non-streamed turn. The reply, or the failure, is
// appended as a single agent message.
func (s *Session) SendOneShot(ctx context.Context, text string) error {
	agentID, err := s.begin()
	if err != nil {
		return err
	}
	defer s.busy.Store(false)

	s.transcript.AppendUser(text)
	reply, err := s.client.SubmitOneShot(ctx, text, agentID)
	if err != nil {
		s.logger.Warn("One-shot turn failed", "agent_id", agentID, "error", err)
		s.transcript.AppendAgent(transcript.ErrorPrefix + err.Error())
		return err
	}
	s.transcript.AppendAgent(reply)
	return nil
}

// begin claims the session for a turn and resolves the agent.
func (s *Session) begin() (string, error) {
	agentID := s.AgentID()
	if agentID == "" {
		s.transcript.AppendSystem(NoticeSelectAgent)
		return "", ErrNoAgent
	}
	if !s.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	return agentID, nil
}
