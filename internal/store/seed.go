package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout of AGENTS_FILE.
type seedFile struct {
	Agents []domain.Agent `yaml:"agents"`
}

// LoadSeedFile parses an agents YAML file. Entries without an ID get a
// generated one.
func LoadSeedFile(path string) ([]domain.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}
	for i := range f.Agents {
		if f.Agents[i].ID == "" {
			f.Agents[i].ID = uuid.NewString()
		}
	}
	return f.Agents, nil
}

// Seed upserts agents from path, or domain.DefaultAgents when path is empty and the
// directory has no entries yet. It returns the number of agents written.
// A nil logger uses slog.Default.
func Seed(ctx context.Context, repo Repository, path string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	agents := domain.DefaultAgents()
	if path != "" {
		loaded, err := LoadSeedFile(path)
		if err != nil {
			return 0, err
		}
		agents = loaded
	} else {
		n, err := repo.CountAgents(ctx)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, nil
		}
	}

	for i := range agents {
		agent := agents[i]
		if err := repo.UpsertAgent(ctx, &agent); err != nil {
			return i, err
		}
		logger.Debug("Seeded agent", "agent_id", agent.ID, "name", agent.Name)
	}
	return len(agents), nil
}
