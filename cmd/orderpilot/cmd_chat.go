package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orderpilot-ai/orderpilot/agent"
	"github.com/orderpilot-ai/orderpilot/chatmodel"
	"github.com/orderpilot-ai/orderpilot/pkg/llms"
)

func newChatCmd() *cobra.Command {
	var (
		verbose bool
		tenant  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive ordering session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), tenant, verbose)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print tool activity while the assistant works")
	cmd.Flags().StringVar(&tenant, "tenant", "local", "tenant for session scoping")
	return cmd
}

func runChat(ctx context.Context, tenant string, verbose bool) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, verbose)
	if err != nil {
		return err
	}
	defer rt.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	chatID := chatmodel.NewChatID()
	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(tenant, chatID, nil))

	fmt.Printf("OrderPilot ready (session %s).\n", chatID)
	fmt.Println("Type 'exit' to quit, '/reset' to forget addresses, restaurants and cart.")

	var history []llms.Message
	scanner := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" || input == "q" {
			fmt.Println("Goodbye.")
			break
		}
		if input == "/reset" {
			if err := rt.store.Reset(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "reset failed: %s\n", err)
				continue
			}
			history = nil
			fmt.Println("Context cleared.")
			continue
		}

		reply, err := rt.agent.Respond(ctx, &agent.Request{
			Input:      input,
			History:    history,
			Credential: token,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
			continue
		}

		fmt.Println(reply.Content)
		fmt.Printf("[%d rounds, %d tool calls, %d tokens]\n",
			reply.Usage.Rounds, reply.Usage.ToolCalls,
			reply.Usage.InputTokens+reply.Usage.OutputTokens)

		history = append(history,
			llms.MessageFromTextParts(llms.RoleHuman, input),
			llms.MessageFromTextParts(llms.RoleAI, reply.Content),
		)
	}
	return scanner.Err()
}
