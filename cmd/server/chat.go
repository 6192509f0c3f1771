package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/config"
)

func newChatCmd() *cobra.Command {
	var (
		callerID string
		useLLM   bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the booking agent on stdin, one utterance per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop()
			if debug {
				var err error
				if log, err = newLogger("debug"); err != nil {
					return err
				}
			}
			cfg := config.Load(log)
			conv, err := config.LoadConversation(cfg.ConversationFile)
			if err != nil {
				return err
			}
			mgr, err := buildManager(cfg, conv, buildOptions{useLLM: useLLM}, log)
			if err != nil {
				return err
			}
			defer mgr.Shutdown()
			return runChat(cmd.Context(), mgr, callerID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&callerID, "caller", "", "caller id to offer for the phone slot")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "extract slots with the configured model instead of literal rules")
	return cmd
}

// runChat opens one session and relays lines until the booking completes or input ends.
func runChat(ctx context.Context, mgr *agent.Manager, callerID string, in io.Reader, out io.Writer) error {
	sess, greeting, err := mgr.Open(ctx, "", callerID)
	if err != nil {
		return err
	}
	defer sess.Close()
	printTurn(out, greeting)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		res, err := sess.Say(ctx, agent.Utterance{Text: line})
		if err != nil {
			return err
		}
		if res.Transition != nil {
			fmt.Fprintf(out, "-- %s -> %s (%s)\n", res.Transition.From, res.Transition.To, res.Transition.Reason)
		}
		printTurn(out, res)
		if res.Ended {
			return nil
		}
	}
	return sc.Err()
}

func printTurn(out io.Writer, t agent.TurnOutput) {
	for _, r := range t.Responses {
		fmt.Fprintf(out, "agent> %s\n", r)
	}
}
