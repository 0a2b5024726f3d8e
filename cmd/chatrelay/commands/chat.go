package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/pkg/types"
)

var (
	chatPreset  string
	chatPrompt  string
	chatMode    string
	chatUser    string
	chatSession string
	chatNoColor bool
	chatJSON    bool
)

const chatHelp = `Commands:
  /history  show the conversation so far
  /export   write the conversation to the exports directory
  /session  show the session id
  /quit     leave the chat`

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Chat with the assistant in the terminal",
	Long: `Open a session and chat with it interactively. With a message argument,
send that one message, print the reply and exit.

Examples:
  chatrelay chat
  chatrelay chat --preset search "What happened in the news today?"
  chatrelay chat --session 01J... # resume a session`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatPreset, "preset", "default", "Interface preset (default|search|nosystem)")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "", "System prompt type, overrides the preset")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "Session mode (normal|search), overrides the preset")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "User id owning the session")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Resume an existing session")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "Print one JSON object per line")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	r := newRenderer(cmd.OutOrStdout(), chatNoColor, chatJSON)

	sess, welcome, err := openChatSession(ctx, a)
	if err != nil {
		return err
	}
	r.Banner(sess, a.dispatcher.PromptName(sess.PromptType), welcome)
	if chatSession != "" {
		r.History(sess.Messages)
	}

	if len(args) > 0 {
		send(ctx, a, r, sess.ID, strings.Join(args, " "))
		return nil
	}

	r.Info("type /help for commands")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/quit", "/exit":
			return nil
		case "/help":
			r.Info(chatHelp)
		case "/session":
			r.Info("session %s", sess.ID)
		case "/history":
			r.History(a.dispatcher.GetHistory(sess.ID))
		case "/export":
			current, ok := a.dispatcher.GetSession(sess.ID)
			if !ok {
				r.Error("session no longer exists")
				continue
			}
			name, err := a.exporter.Export(ctx, current)
			if err != nil {
				r.Error(err.Error())
				continue
			}
			r.Info("exported to %s", name)
		default:
			send(ctx, a, r, sess.ID, line)
		}
	}
	return scanner.Err()
}

// openChatSession resumes --session or creates a session from the flags.
func openChatSession(ctx context.Context, a *app) (*types.Session, string, error) {
	if chatSession != "" {
		sess, ok := a.dispatcher.GetSession(chatSession)
		if !ok {
			return nil, "", fmt.Errorf("session %s not found", chatSession)
		}
		return sess, "", nil
	}

	preset, ok := dispatch.LookupPreset(chatPreset)
	if !ok {
		return nil, "", fmt.Errorf("unknown preset %q (want one of %s)", chatPreset, strings.Join(dispatch.PresetNames(), ", "))
	}
	promptType, mode := preset.PromptType, preset.Mode
	if chatPrompt != "" {
		promptType = chatPrompt
	}
	if chatMode != "" {
		mode = types.Mode(chatMode)
	}

	sess, err := a.dispatcher.CreateSession(ctx, chatUser, promptType, mode)
	if err != nil {
		return nil, "", err
	}
	return sess, a.dispatcher.Welcome(chatPreset).Message, nil
}

func send(ctx context.Context, a *app, r *renderer, sessionID, text string) {
	if !r.json {
		r.Info("thinking...")
	}
	result := a.dispatcher.SendMessage(ctx, sessionID, text)
	if !result.Success {
		r.Error(result.Error)
		return
	}
	r.Assistant(result.Response)
}
