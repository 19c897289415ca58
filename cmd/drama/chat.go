package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/drama/drama"
)

const replHelp = `Commands:
  /chats         list chats
  /switch <id>   continue in another chat
  /reset         clear the current chat
  /help          show this help
  /quit          leave`

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [chat-id]",
		Short: "Talk to the companions in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.newEngine(ctx, cfg.Roster)
	if err != nil {
		return err
	}

	chatID := ""
	if len(args) == 1 {
		chatID = args[0]
	}
	return newREPL(engine, cmd.OutOrStdout(), logger).run(ctx, cmd.InOrStdin(), chatID)
}

// repl reads one user message per line and prints every reply.
type repl struct {
	engine *drama.Engine
	out    io.Writer
	logger *zap.Logger
	chat   *drama.Chat
}

func newREPL(engine *drama.Engine, out io.Writer, logger *zap.Logger) *repl {
	return &repl{engine: engine, out: out, logger: logger}
}

// run starts in chatID, or the first chat when empty, and returns at end
// of input or on /quit.
func (r *repl) run(ctx context.Context, in io.Reader, chatID string) error {
	if err := r.switchTo(chatID); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	r.prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		quit, err := r.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		r.prompt()
	}
	return scanner.Err()
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := r.engine.Post(ctx, r.chat, line, r.print)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			r.logger.Warn("turn failed", zap.String("chat_id", r.chat.ID), zap.Error(err))
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		return false, nil
	}

	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/chats":
		for _, ch := range r.engine.Chats() {
			marker := " "
			if ch == r.chat {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s (%d messages)\n", marker, ch.ID, len(ch.History))
		}
	case "/switch":
		if err := r.switchTo(strings.TrimSpace(arg)); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	case "/reset":
		if err := r.engine.ResetChat(ctx, r.chat.ID); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return false, nil
		}
		fmt.Fprintf(r.out, "%s cleared\n", r.chat.ID)
	default:
		fmt.Fprintf(r.out, "unknown command %s\n%s\n", command, replHelp)
	}
	return false, nil
}

func (r *repl) switchTo(chatID string) error {
	if chatID == "" {
		chats := r.engine.Chats()
		if len(chats) == 0 {
			return drama.ErrChatNotFound
		}
		chatID = chats[0].ID
	}
	chat, ok := r.engine.GetChat(chatID)
	if !ok {
		return fmt.Errorf("%w: %s", drama.ErrChatNotFound, chatID)
	}
	r.chat = chat
	fmt.Fprintf(r.out, "chatting in %s, /help for commands\n", chat.ID)
	return nil
}

func (r *repl) prompt() {
	fmt.Fprint(r.out, "> ")
}

// print shows companion messages; the user's own line is already on screen.
func (r *repl) print(_ *drama.Chat, msg drama.ChatMessage) {
	if msg.Companion == nil || msg.Companion.Config.Kind == drama.KindUser {
		return
	}
	fmt.Fprintf(r.out, "%s: %s\n", msg.Companion.Config.Name, msg.Text)
}
