package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ashureev/agentstream/internal/chat"
	"github.com/ashureev/agentstream/internal/client"
	"github.com/ashureev/agentstream/internal/config"
	"github.com/ashureev/agentstream/internal/domain"
	"github.com/ashureev/agentstream/internal/render"
	"github.com/spf13/cobra"
)

func newClient(cfg *config.Config, logger *slog.Logger) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:        cfg.BaseURL,
		RequestTimeout: cfg.RequestTimeout,
		StrictEOF:      cfg.Stream.StrictEOF,
		ReadSize:       cfg.Stream.ReadSize,
		Logger:         logger,
	})
}

// wsClient routes streamed turns through the WebSocket endpoint.
type wsClient struct {
	*client.Client
}

func (c wsClient) SubmitStreamed(ctx context.Context, text, agentID string, onChunk func(string), onError func(error)) error {
	return c.SubmitWebSocket(ctx, text, agentID, onChunk, onError)
}

func newChatCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var oneShot, useWebSocket bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive streamed conversation",
		Long: `Start an interactive conversation. Each line is sent as one turn and the
reply is printed as it streams in.

Commands:
  /agents        list agents
  /agent <id>    switch agent
  /once <text>   send one non-streamed turn
  /quit          exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			var transport chat.AgentClient = c
			if useWebSocket {
				transport = wsClient{c}
			}
			return runChat(cmd.Context(), transport, cfg.AgentID, oneShot, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVar(&oneShot, "oneshot", false, "wait for complete replies instead of streaming")
	cmd.Flags().BoolVar(&useWebSocket, "ws", false, "stream replies over the WebSocket endpoint")
	return cmd
}

func runChat(ctx context.Context, c chat.AgentClient, agentID string, oneShot bool, in io.Reader, out io.Writer, logger *slog.Logger) error {
	r := render.New(out)
	streaming := false
	session := chat.NewSession(c, chat.Options{
		AgentID: agentID,
		Logger:  logger,
		OnChunk: func(text string) {
			if !streaming {
				r.AgentStart()
				streaming = true
			}
			r.Chunk(text)
		},
	})

	// printNew writes transcript entries added since the last call. User
	// lines were typed at the prompt, and streamed agent text is already on
	// screen.
	shown := 0
	printNew := func(streamed bool) {
		msgs := session.Transcript().Messages()
		for _, m := range msgs[shown:] {
			switch {
			case m.Sender == domain.SenderUser:
			case m.Sender == domain.SenderAgent && streamed:
			default:
				r.Message(m)
			}
		}
		shown = len(msgs)
	}

	_ = session.LoadAgents(ctx)
	printNew(false)
	r.Agents(session.Agents(), session.AgentID())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, render.Label(domain.SenderUser)+" ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		once := oneShot
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/agents":
			r.Agents(session.Agents(), session.AgentID())
			continue
		case "/agent":
			if err := session.SelectAgent(strings.TrimSpace(arg)); err != nil {
				fmt.Fprintln(out, render.ErrorStyle.Render(err.Error()))
			}
			continue
		case "/once":
			line = strings.TrimSpace(arg)
			if line == "" {
				continue
			}
			once = true
		}

		if once {
			_ = session.SendOneShot(ctx, line)
		} else {
			_ = session.Send(ctx, line)
		}
		if streaming {
			r.AgentEnd()
			streaming = false
		}
		printNew(!once)

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func newSendCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID := resolveAgentID(cfg.AgentID)
			c, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if !stream {
				reply, err := c.SubmitOneShot(cmd.Context(), text, agentID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				return nil
			}

			err = c.SubmitStreamed(cmd.Context(), text, agentID, func(chunk string) {
				fmt.Fprint(out, chunk)
			}, nil)
			fmt.Fprintln(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "print the reply as it streams in")
	return cmd
}

// resolveAgentID falls back to the first built-in agent, as chat does.
func resolveAgentID(agentID string) string {
	if agentID != "" {
		return agentID
	}
	return domain.DefaultAgents()[0].ID
}

func newAgentsCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List available agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			agents, err := c.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			render.New(cmd.OutOrStdout()).Agents(agents, cfg.AgentID)
			return nil
		},
	}
}
