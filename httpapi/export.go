package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/docpanel/docpanel/session"
)

// MarkdownExport renders a session's conversation as a markdown document.
// filenames are the display names of the session's documents, in order.
func MarkdownExport(sess *session.Session, filenames []string, includeMetadata bool) string {
	var b strings.Builder

	b.WriteString("# AI Document Review Session\n\n")

	if includeMetadata {
		b.WriteString("## Session Information\n\n")
		fmt.Fprintf(&b, "**Session ID:** %s\n", sess.ID)
		fmt.Fprintf(&b, "**Created:** %s\n", sess.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "**Documents:** %d\n", len(sess.DocumentIDs))
		fmt.Fprintf(&b, "**Team Members:** %d\n\n", len(sess.Members))

		if len(filenames) > 0 {
			b.WriteString("### Documents\n\n")
			for i, name := range filenames {
				fmt.Fprintf(&b, "%d. %s\n", i+1, name)
			}
			b.WriteString("\n")
		}

		b.WriteString("### Team Members\n\n")
		for i, member := range sess.Members {
			fmt.Fprintf(&b, "%d. **%s** - %s (Model: %s)\n", i+1, member.Name, member.Role, member.Model)
		}
		b.WriteString("\n---\n\n")
	}

	b.WriteString("## Conversation\n\n")
	for _, turn := range sess.Log.Turns() {
		timestamp := turn.Timestamp.Format("15:04:05")
		switch {
		case turn.IsUser():
			fmt.Fprintf(&b, "### 👤 User (%s)\n\n%s\n\n", timestamp, turn.Content)
		case turn.IsAgent():
			header := fmt.Sprintf("### 🤖 %s", turn.AgentName)
			if turn.Role != "" {
				header += " - " + turn.Role
			}
			if turn.Model != "" {
				header += fmt.Sprintf(" (%s)", turn.Model)
			}
			fmt.Fprintf(&b, "%s (%s)\n\n%s\n\n", header, timestamp, turn.Content)

			if includeMetadata && turn.ResponseTimeSeconds > 0 {
				fmt.Fprintf(&b, "*Response time: %vs*\n\n", turn.ResponseTimeSeconds)
			}
		}
	}

	if includeMetadata {
		fmt.Fprintf(&b, "---\n\n*Exported on %s*", time.Now().Format("2006-01-02 15:04:05"))
	}

	return b.String()
}
