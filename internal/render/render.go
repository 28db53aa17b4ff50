// Package render prints transcript messages and the agent directory to a
// terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// ANSI colors.
const (
	ColorCyan  = lipgloss.Color("12") // User label
	ColorGreen = lipgloss.Color("10") // Agent label
	ColorRed   = lipgloss.Color("9")  // Errors
	ColorGray  = lipgloss.Color("8")  // System notices, meta info
)

// Styles for transcript output.
var (
	UserStyle   = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)
	AgentStyle  = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	SystemStyle = lipgloss.NewStyle().Foreground(ColorGray).Italic(true)
	ErrorStyle  = lipgloss.NewStyle().Foreground(ColorRed)
	DimStyle    = lipgloss.NewStyle().Foreground(ColorGray)
)

// Label returns the styled sender label, e.g. "you ›".
func Label(sender domain.Sender) string {
	switch sender {
	case domain.SenderUser:
		return UserStyle.Render("you ›")
	case domain.SenderAgent:
		return AgentStyle.Render("agent ›")
	default:
		return SystemStyle.Render("system ›")
	}
}

// Renderer writes conversation output. Streamed agent text is written raw as
// it arrives between AgentStart and AgentEnd.
type Renderer struct {
	w io.Writer
}

// New creates a Renderer writing to w.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Message writes one complete transcript message.
func (r *Renderer) Message(m domain.Message) {
	text := m.Text
	switch {
	case m.Sender == domain.SenderSystem && strings.HasPrefix(text, "Error: "):
		text = ErrorStyle.Render(text)
	case m.Sender == domain.SenderSystem:
		text = SystemStyle.Render(text)
	}
	fmt.Fprintf(r.w, "%s %s\n", Label(m.Sender), text)
}

// Messages writes each message in order.
func (r *Renderer) Messages(msgs []domain.Message) {
	for _, m := range msgs {
		r.Message(m)
	}
}

// AgentStart writes the agent label that precedes streamed text.
func (r *Renderer) AgentStart() {
	fmt.Fprintf(r.w, "%s ", Label(domain.SenderAgent))
}

// Chunk writes one piece of streamed agent text.
func (r *Renderer) Chunk(text string) {
	_, _ = io.WriteString(r.w, text)
}

// AgentEnd terminates the streamed agent line.
func (r *Renderer) AgentEnd() {
	_, _ = io.WriteString(r.w, "\n")
}

// Agents writes the directory, marking the selected agent.
func (r *Renderer) Agents(agents []domain.Agent, selected string) {
	if len(agents) == 0 {
		fmt.Fprintln(r.w, DimStyle.Render("no agents available"))
		return
	}
	for _, a := range agents {
		marker := " "
		if a.ID == selected {
			marker = AgentStyle.Render("*")
		}
		fmt.Fprintf(r.w, "%s %s %s\n", marker, a.DisplayName(), DimStyle.Render(a.ID))
	}
}
