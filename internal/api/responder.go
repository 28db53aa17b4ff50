package api

import (
	"context"
	"iter"
	"strings"

	"github.com/ashureev/agentstream/internal/domain"
)

// Responder produces an agent reply as a sequence of text chunks.
type Responder interface {
	Respond(ctx context.Context, agent *domain.Agent, message string) iter.Seq2[string, error]
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, agent *domain.Agent, message string) iter.Seq2[string, error]

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, agent *domain.Agent, message string) iter.Seq2[string, error] {
	return f(ctx, agent, message)
}

// EchoResponder replies with the agent greeting followed by the user's
// message, one word per chunk.
type EchoResponder struct{}

// Respond implements Responder.
func (EchoResponder) Respond(ctx context.Context, agent *domain.Agent, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reply := "You said: " + message
		if agent != nil && agent.Greeting != "" {
			reply = agent.Greeting + " " + reply
		}
		for _, chunk := range SplitWords(reply) {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// SplitWords cuts s into chunks that each end after a run of spaces, so the
// chunks concatenate back to s.
func SplitWords(s string) []string {
	var chunks []string
	for len(s) > 0 {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			chunks = append(chunks, s)
			break
		}
		j := i
		for j < len(s) && s[j] == ' ' {
			j++
		}
		chunks = append(chunks, s[:j])
		s = s[j:]
	}
	return chunks
}
