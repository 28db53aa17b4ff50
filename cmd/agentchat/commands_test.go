package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/ashureev/agentstream/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	chunks  []string
	failure error
	agents  []domain.Agent
	listErr error
}

func (c *scriptedClient) SubmitStreamed(_ context.Context, _, _ string, onChunk func(string), onError func(error)) error {
	for _, chunk := range c.chunks {
		onChunk(chunk)
	}
	if c.failure != nil {
		onError(c.failure)
	}
	return c.failure
}

func (c *scriptedClient) SubmitOneShot(context.Context, string, string) (string, error) {
	return strings.Join(c.chunks, ""), c.failure
}

func (c *scriptedClient) ListAgents(context.Context) ([]domain.Agent, error) {
	return c.agents, c.listErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunChatStreamsReply(t *testing.T) {
	c := &scriptedClient{chunks: []string{"Hel", "lo"}, agents: []domain.Agent{{ID: "a1", Name: "Ada"}}}
	var out bytes.Buffer

	err := runChat(context.Background(), c, "", false, strings.NewReader("hi\n/quit\n"), &out, discardLogger())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Ada")
	assert.Equal(t, 1, strings.Count(out.String(), "Hello"))
}

func TestRunChatShowsFailures(t *testing.T) {
	c := &scriptedClient{
		chunks:  []string{"ab"},
		failure: &stream.ProtocolError{Message: "boom"},
		listErr: errors.New("offline"),
	}
	var out bytes.Buffer

	err := runChat(context.Background(), c, "", false, strings.NewReader("hi\n"), &out, discardLogger())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Failed to load agents. Using defaults.")
	assert.Contains(t, out.String(), "Zeek")
	assert.Contains(t, out.String(), "ab")
	assert.Contains(t, out.String(), "Error: boom")
}

func TestRunChatOneShotCommand(t *testing.T) {
	c := &scriptedClient{chunks: []string{"hey"}}
	var out bytes.Buffer

	err := runChat(context.Background(), c, "a1", false, strings.NewReader("/once hi\n"), &out, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "hey"))
}

func TestRunChatUnknownAgent(t *testing.T) {
	c := &scriptedClient{}
	var out bytes.Buffer

	err := runChat(context.Background(), c, "", false, strings.NewReader("/agent nobody\n"), &out, discardLogger())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "unknown agent: nobody")
}

func TestResolveAgentID(t *testing.T) {
	assert.Equal(t, "a1", resolveAgentID("a1"))
	assert.Equal(t, domain.DefaultAgents()[0].ID, resolveAgentID(""))
	assert.NotEmpty(t, resolveAgentID(""))
}
