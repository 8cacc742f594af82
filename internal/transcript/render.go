// Package transcript prints flattened conversations for terminal use.
package transcript

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"support-widget/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	botStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	timeStyle   = lipgloss.NewStyle().Faint(true)
	bodyStyle   = lipgloss.NewStyle().PaddingLeft(2)
)

// Render writes a header line followed by one block per message.
func Render(w io.Writer, conversationID, state string, messages []model.Message) error {
	header := "Conversation #" + conversationID
	if state != "" {
		header += " (" + state + ")"
	}
	if _, err := fmt.Fprintln(w, headerStyle.Render(header)); err != nil {
		return err
	}
	if len(messages) == 0 {
		_, err := fmt.Fprintln(w, timeStyle.Render("no messages"))
		return err
	}
	for _, m := range messages {
		if _, err := fmt.Fprintf(w, "%s %s\n%s\n", speaker(m), timeStyle.Render(formatTime(m.Timestamp)), bodyStyle.Render(strings.TrimSpace(m.Content))); err != nil {
			return err
		}
	}
	return nil
}

func speaker(m model.Message) string {
	if m.Role == model.RoleUser {
		name := m.UserID
		if name == "" {
			name = "user"
		}
		return userStyle.Render(name)
	}
	name := "support"
	if m.Author != nil && m.Author.Name != "" {
		name = m.Author.Name
	}
	return botStyle.Render(name)
}

func formatTime(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}
