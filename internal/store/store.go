// Package store provides the agent directory used by the development server.
package store

import (
	"context"

	"github.com/ashureev/agentstream/internal/domain"
)

// Repository defines the interface for persisting the agent directory.
type Repository interface {
	// ListAgents returns all agents ordered by name.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// GetAgent retrieves an agent by ID. It returns nil, nil when absent.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// UpsertAgent creates or updates an agent record.
	UpsertAgent(ctx context.Context, agent *domain.Agent) error

	// CountAgents returns the number of agents in the directory.
	CountAgents(ctx context.Context) (int, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
