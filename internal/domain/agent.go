package domain

import "time"

// UnnamedAgent is shown for directory entries that carry no name.
const UnnamedAgent = "Unnamed Agent"

// Agent is an addressable agent in the directory.
type Agent struct {
	ID        string    `json:"agentId" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Greeting  string    `json:"-" yaml:"greeting"`
	CreatedAt time.Time `json:"-" yaml:"-"`
	UpdatedAt time.Time `json:"-" yaml:"-"`
}

// DisplayName returns the agent name, falling back to UnnamedAgent.
func (a Agent) DisplayName() string {
	if a.Name == "" {
		return UnnamedAgent
	}
	return a.Name
}

// AgentList is the wire form of the agent directory listing. AgentInfo is
// nil when the field is absent or null.
type AgentList struct {
	AgentInfo []Agent `json:"agentInfo"`
}

// DefaultAgents is the built-in directory used before, or instead of, a
// fetched listing.
func DefaultAgents() []Agent {
	return []Agent{
		{ID: "3e3283ef-b9a0-4c8e-a902-a0a2b6d2a924", Name: "Zeek", Greeting: "Zeek here."},
		{ID: "agentId2", Name: "Luna", Greeting: "Luna listening."},
	}
}
