// Package domain contains core domain types for the agent chat client.
package domain

// Sender identifies who produced a transcript message.
type Sender string

const (
	// SenderUser marks text typed by the local user.
	SenderUser Sender = "user"
	// SenderAgent marks text produced by the remote agent.
	SenderAgent Sender = "agent"
	// SenderSystem marks client-generated notices such as errors.
	SenderSystem Sender = "system"
)

// Message is a single displayable transcript entry.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// ChatRequest is the JSON body sent to the agent API for every turn.
type ChatRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agentId"`
}

// ChatReply is the one-shot response body and the per-record stream payload.
type ChatReply struct {
	Reply *string `json:"reply,omitempty"`
	Error *string `json:"error,omitempty"`
}
