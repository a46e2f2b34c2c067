package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/service"
)

// printReply prints the assistant's reply and a one-line turn summary.
func printReply(w io.Writer, res *service.ChatResult, showCalls bool) {
	if res == nil || res.AssistantMessage == nil {
		return
	}
	fmt.Fprintln(w, strings.TrimSpace(res.AssistantMessage.Content))

	if p := res.AssistantMessage.Payload; p != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, defaultTheme.statusStyle().Render(fmt.Sprintf("[structured data: %s]", p.Type)))
	}

	if showCalls && len(res.FunctionCalls) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Tool calls:")
		for _, fc := range res.FunctionCalls {
			mark := "✓"
			if !fc.Success {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s round %d  %s %s\n", mark, fc.Round, fc.Name, fc.Arguments)
		}
	}

	if res.Outcome == service.OutcomeRoundLimit {
		fmt.Fprintln(w)
		fmt.Fprintln(w, defaultTheme.errorStyle().Render(
			fmt.Sprintf("Stopped after %d rounds; %d pending tool calls were skipped.", res.Usage.Rounds, res.DroppedToolCalls)))
	}

	summary := fmt.Sprintf("conversation %s · %d rounds · %d tokens",
		res.Conversation.ID, res.Usage.Rounds, res.Usage.TotalTokens)
	fmt.Fprintln(w)
	fmt.Fprintln(w, defaultTheme.hintStyle().Render(summary))
}

// printConversations prints one line per conversation.
func printConversations(w io.Writer, convs []models.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}
	for _, c := range convs {
		title := "(untitled)"
		if c.Title != nil {
			title = *c.Title
		}
		flags := ""
		if c.Archived {
			flags = " [archived]"
		}
		if c.ProjectID != nil {
			flags += " [project " + *c.ProjectID + "]"
		}
		fmt.Fprintf(w, "%s  %-50s  %s%s\n", c.ID, title, c.UpdatedAt.Local().Format(time.DateTime), flags)
	}
}

// printMessages prints a conversation log.
func printMessages(w io.Writer, conv *models.ConversationWithMessages) {
	title := "(untitled)"
	if conv.Title != nil {
		title = *conv.Title
	}
	fmt.Fprintf(w, "%s\n%s\n\n", title, strings.Repeat("═", len([]rune(title))))
	for _, m := range conv.Messages {
		label := string(m.Role)
		switch m.Role {
		case models.RoleUser:
			label = defaultTheme.statusStyle().Render("you")
		case models.RoleAssistant:
			label = defaultTheme.completedStyle().Render("assistant")
		case models.RoleSystem:
			label = defaultTheme.hintStyle().Render("context")
		}
		fmt.Fprintf(w, "%s  %s\n", label, m.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintln(w, strings.TrimSpace(m.Content))
		if m.Payload != nil {
			fmt.Fprintf(w, "[structured data: %s]\n", m.Payload.Type)
		}
		fmt.Fprintln(w)
	}
}

// printSettings prints workspace settings.
func printSettings(w io.Writer, st *models.Settings) {
	orNone := func(s string) string {
		if s == "" {
			return "(none)"
		}
		return s
	}
	fmt.Fprintf(w, "Workspace:      %s\n", st.WorkspaceID)
	fmt.Fprintf(w, "Enabled:        %t\n", st.Enabled)
	fmt.Fprintf(w, "Provider:       %s\n", orNone(st.Provider))
	fmt.Fprintf(w, "Model:          %s\n", orNone(st.Model))
	fmt.Fprintf(w, "Monthly limit:  %d tokens\n", st.MonthlyTokenLimit)
}
