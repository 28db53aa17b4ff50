// Package transcript maintains the ordered conversation view and coalesces
// streamed agent chunks into a single message per turn.
package transcript

import (
	"strings"
	"sync"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/google/uuid"
)

// ErrorPrefix is prepended to every failure notice appended to the transcript.
const ErrorPrefix = "Error: "

// Transcript is the single writer of the conversation. Mutations are applied
// synchronously, so a snapshot always reflects everything received so far.
// The lock only keeps snapshots consistent; callers still run one turn at a time.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message

	// turn is the identity of the current agent turn, uuid.Nil when none.
	turn uuid.UUID
	// openIndex is the position of the open agent message of turn, or -1.
	openIndex int
	running   strings.Builder
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{openIndex: -1}
}

// AppendUser appends a user message. It never merges with a prior entry.
func (t *Transcript) AppendUser(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, domain.Message{Sender: domain.SenderUser, Text: text})
}

// AppendAgent appends a complete agent message outside of any streamed turn.
func (t *Transcript) AppendAgent(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, domain.Message{Sender: domain.SenderAgent, Text: text})
}

// AppendSystem appends a client-generated notice.
func (t *Transcript) AppendSystem(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, domain.Message{Sender: domain.SenderSystem, Text: text})
}

// BeginAgentTurn starts a new agent turn and returns its identity. Any turn
// still open is closed first. No message is appended until the first chunk.
func (t *Transcript) BeginAgentTurn() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	t.turn = uuid.New()
	return t.turn
}

// ApplyChunk adds text to the running total of the current turn and shows
// the total as the turn's agent message.
func (t *Transcript) ApplyChunk(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.turn == uuid.Nil {
		t.turn = uuid.New()
	}
	t.running.WriteString(text)
	msg := domain.Message{Sender: domain.SenderAgent, Text: t.running.String()}

	if t.openIndex >= 0 && t.openIndex == len(t.messages)-1 {
		t.messages[t.openIndex] = msg
		return
	}
	t.messages = append(t.messages, msg)
	t.openIndex = len(t.messages) - 1
}

// FinalizeTurn closes the current turn. Later chunks start a new message.
func (t *Transcript) FinalizeTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
}

// FailTurn closes the current turn and appends a system message describing
// err. Agent text that already arrived is kept.
func (t *Transcript) FailTurn(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()

	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	t.messages = append(t.messages, domain.Message{Sender: domain.SenderSystem, Text: ErrorPrefix + text})
}

// Open reports whether an agent turn is in progress.
func (t *Transcript) Open() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turn != uuid.Nil
}

// Turn returns the identity of the current turn, or uuid.Nil.
func (t *Transcript) Turn() uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turn
}

// Messages returns a copy of the transcript in conversation order.
func (t *Transcript) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the trailing message, if any.
func (t *Transcript) Last() (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return domain.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

func (t *Transcript) closeLocked() {
	t.turn = uuid.Nil
	t.openIndex = -1
	t.running.Reset()
}
