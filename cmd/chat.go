package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/candor0/candor/internal/cli"
	"github.com/candor0/candor/internal/trace"
)

var flagServerURL string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat against a running candor server",
	Long: `Starts a terminal chat session. Each message streams the agent's
reasoning live: thoughts and tool activity as dim one-liners, the final
answer rendered as markdown.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runChat()
	},
}

func init() {
	chatCmd.Flags().StringVar(&flagServerURL, "server", "http://localhost:8080", "candor server URL")
	rootCmd.AddCommand(chatCmd)
}

func runChat() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := cli.NewClient(flagServerURL, nil)
	conversationID, err := client.CreateConversation(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", flagServerURL, err)
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	renderer := cli.NewRenderer(width)
	promptStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

	fmt.Println("candor chat - type a message, /exit to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("you> ") + " ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		answered := false
		err := client.SendMessage(ctx, conversationID, input, func(ev *trace.Event) error {
			if out := renderer.Render(ev); out != "" {
				fmt.Print(out)
			}
			if ev.IsTerminalAnswer() {
				answered = true
			}
			return nil
		})
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, cli.ErrConversationBusy):
			fmt.Println("turn still running, try again in a moment")
			continue
		case err != nil:
			return err
		}
		if !answered {
			fmt.Println("(turn ended without an answer)")
		}
	}
}
