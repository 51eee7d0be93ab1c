package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/schemati/schemati-backend/internal/chat"
)

func buildChatCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the diagram assistant (Ctrl-C stops a reply, /clear resets, /quit exits)",
		Long: "Talk to the diagram assistant. Diagram edits the assistant proposes are\n" +
			"listed under its reply; they are applied by the editor, not here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = cfg.Chat.BaseURL
			}
			client := chat.NewClient(baseURL,
				chat.WithModel(cfg.Chat.Model),
				chat.WithMaxTokens(cfg.Chat.MaxTokens),
				chat.WithTimeout(cfg.Chat.RequestTimeout),
			)
			return runChat(cmd.Context(), chat.NewController(client), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Chat server base URL (default CHAT_BASE_URL)")
	return cmd
}

// streamPrinter writes the newest assistant text as it grows.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
}

func (p *streamPrinter) reset() {
	p.mu.Lock()
	p.printed = 0
	p.mu.Unlock()
}

func (p *streamPrinter) update(msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleAssistant {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(last.Content) > p.printed {
		fmt.Fprint(p.out, last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

func runChat(ctx context.Context, ctrl *chat.Controller, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printer := &streamPrinter{out: out}
	ctrl.OnChange(func() { printer.update(ctrl.Messages()) })

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if ctrl.Sending() {
					ctrl.Stop()
					continue
				}
				cancel()
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			ctrl.Clear()
			fmt.Fprintln(out, "(cleared)")
			continue
		}

		printer.reset()
		err := ctrl.Send(ctx, line)
		fmt.Fprintln(out)
		switch {
		case err == nil:
			for _, p := range ctrl.Proposals() {
				fmt.Fprintf(out, "  proposed %s %s\n", p.Name, p.Arguments)
			}
		case errors.Is(err, chat.ErrCanceled):
			fmt.Fprintln(out, "(stopped)")
		default:
			fmt.Fprintf(out, "(%v)\n", err)
		}
	}
}
