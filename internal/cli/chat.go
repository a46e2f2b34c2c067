package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/sprintpilot/internal/client"
	"github.com/raphaelgruber/sprintpilot/internal/service"
)

var (
	chatConversation string
	chatProject      string
	chatEpic         string
	chatWizard       bool
	chatPlain        bool
	chatShowCalls    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the planning assistant",
	Long: `Send a message to the planning assistant.

Without a message, starts an interactive session that keeps the
conversation going until you type "exit" or press Ctrl+D.

Examples:
  sprintpilot chat "Who has capacity this week?"
  sprintpilot chat -c 3f2a... "And next week?"
  sprintpilot chat --project p1 --epic e4 "Break this epic into stories"
  sprintpilot chat --wizard "Let's plan the billing revamp"
  sprintpilot chat`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "continue a conversation")
	chatCmd.Flags().StringVarP(&chatProject, "project", "p", "", "scope the conversation to a project")
	chatCmd.Flags().StringVar(&chatEpic, "epic", "", "ask for a story breakdown of this epic (needs --project)")
	chatCmd.Flags().BoolVar(&chatWizard, "wizard", false, "start the guided project creation wizard")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "no progress display")
	chatCmd.Flags().BoolVar(&chatShowCalls, "calls", false, "list the tool calls the assistant made")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	in := client.ChatInput{
		ConversationID: chatConversation,
		ProjectID:      chatProject,
		EpicID:         chatEpic,
		StartWizard:    chatWizard,
	}

	if len(args) == 1 {
		in.Message = args[0]
		_, err := sendTurn(ctx, out, in)
		return err
	}
	return interactive(ctx, cmd.InOrStdin(), out, in)
}

// interactive reads one message per line and keeps the conversation id
// between turns.
func interactive(ctx context.Context, r io.Reader, out io.Writer, in client.ChatInput) error {
	fmt.Fprintln(out, defaultTheme.hintStyle().Render(`Type a message. "exit" or Ctrl+D quits.`))
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		in.Message = line
		res, err := sendTurn(ctx, out, in)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			// Keep the session alive; the user message may still be stored.
			fmt.Fprintln(out, defaultTheme.errorStyle().Render("✗ "+err.Error()))
			continue
		}
		in.ConversationID = res.Conversation.ID
		// Wizard and epic requests only apply to the first turn.
		in.StartWizard, in.EpicID = false, ""
	}
}

// sendTurn runs one chat turn and prints the reply.
func sendTurn(ctx context.Context, out io.Writer, in client.ChatInput) (*service.ChatResult, error) {
	var (
		res *service.ChatResult
		err error
	)
	switch {
	case chatPlain:
		res, err = apiClient.Chat(ctx, workspaceID, in)
	case isTerminal(out):
		res, err = runChatWithProgress(ctx, apiClient, workspaceID, in)
	default:
		res, err = apiClient.ChatStream(ctx, workspaceID, in, nil)
	}
	if err != nil {
		return nil, describeError(err)
	}
	printReply(out, res, chatShowCalls)
	return res, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// describeError adds a hint for errors the user can act on.
func describeError(err error) error {
	switch client.Category(err) {
	case "configuration":
		return fmt.Errorf("%w\nhint: enable the assistant with 'sprintpilot settings set --enabled --provider <name>'", err)
	case "usage_limit":
		return fmt.Errorf("%w\nhint: check 'sprintpilot usage' or raise the limit with 'sprintpilot settings set --limit <tokens>'", err)
	default:
		return err
	}
}
