package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/sales-lead-agent/internal/conversation"
)

var (
	chatSession  string
	chatShowLead bool
)

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "cli", "session id for this conversation")
	chatCmd.Flags().BoolVar(&chatShowLead, "show-lead", false, "print lead state and fields after every reply")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent in the terminal",
	Long: `Start an interactive conversation with the agent.

Type 'quit' to exit.

Examples:
  leadctl chat
  leadctl chat --session demo --show-lead`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, cfg, logger, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.PrepareKnowledge(ctx, cfg, logger); err != nil {
			return fmt.Errorf("prepare knowledge: %w", err)
		}
		return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), svc.Registry, chatSession, chatShowLead)
	},
}

const (
	chatWelcome = "Welcome to the Sales Assistant! Type 'quit' to exit."
	chatGoodbye = "Goodbye! Thank you for your interest."
	chatEmpty   = "Please enter a message."
)

// repl reads one message per line until quit or EOF. Turn errors are
// printed and the loop continues.
func repl(ctx context.Context, in io.Reader, out io.Writer, proc conversation.TurnProcessor, session string, showLead bool) error {
	fmt.Fprintln(out, chatWelcome)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "quit") {
			fmt.Fprintln(out, chatGoodbye)
			return nil
		}
		if line == "" {
			fmt.Fprintln(out, chatEmpty)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := proc.Process(ctx, session, line)
		if err != nil {
			fmt.Fprintf(out, "\nBot: (error) %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\nBot: %s\n", result.Reply)
		if showLead {
			fmt.Fprintf(out, "[state=%s lead=%v]\n", result.State, result.LeadInfo)
		}
	}
}
