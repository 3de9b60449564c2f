package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dengzhuofu/foodai-agent"
	"github.com/dengzhuofu/foodai-agent/internal/presentation/tui"
	"github.com/dengzhuofu/foodai-agent/pkg/agent"
	"github.com/dengzhuofu/foodai-agent/pkg/preset"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the agent from the terminal",
	Long: `Sends a single message when one is given, otherwise starts an interactive session.
The session keeps its history in the transcript store. Type 'exit' or 'quit' to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cfg, _, err := newEngine(ctx, cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		c := chatSession{
			agent:    eng.Agent,
			out:      cmd.OutOrStdout(),
			styled:   isTerminal(os.Stdout),
			maxInput: cfg.Session.MaxInputBytes,
		}
		c.caller, _ = cmd.Flags().GetString("caller")
		c.agentID, _ = cmd.Flags().GetString("agent")
		c.sessionID, _ = cmd.Flags().GetString("session")
		c.showTrace, _ = cmd.Flags().GetBool("trace")
		if c.sessionID == "" {
			c.sessionID = uuid.NewString()
		}
		c.render = tui.NewRenderer(c.styled, terminalWidth(os.Stdout))

		if len(args) == 1 {
			return c.send(ctx, args[0])
		}
		if c.styled {
			tui.PrintBanner(c.out, foodai.Version)
		}
		return c.loop(ctx, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("caller", "1", "Caller identity the agent acts for")
	chatCmd.Flags().String("agent", preset.DefaultAgentID, "Agent preset to use")
	chatCmd.Flags().String("session", "", "Session id (a new one is generated when empty)")
	chatCmd.Flags().Bool("trace", true, "Show the tool calls of each answer")
}

// chatRunner is the part of the agent the chat command drives.
type chatRunner interface {
	Run(ctx context.Context, req agent.Request) agent.Response
}

type chatSession struct {
	agent     chatRunner
	out       io.Writer
	render    tui.Renderer
	styled    bool
	showTrace bool
	maxInput  int

	caller    string
	agentID   string
	sessionID string
}

func (c *chatSession) loop(ctx context.Context, in io.Reader) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(c.out, "> ")
		raw, tooLong, err := readLine(reader, c.maxInput)
		if err != nil {
			fmt.Fprintln(c.out)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if tooLong {
			fmt.Fprintf(c.out, "Error: %v: limit=%d\n", agent.ErrInputTooLarge, c.maxInput)
			continue
		}
		line := strings.TrimSpace(raw)
		switch line {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(c.out, "Bye!")
			return nil
		}
		err = c.send(ctx, line)
		if errors.Is(err, agent.ErrInputTooLarge) || errors.Is(err, agent.ErrInvalidUTF8) {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}
		if err != nil {
			return err
		}
	}
}

// readLine reads one line without its line ending. A line longer than limit bytes
// (limit > 0) is consumed in full but not buffered, and reported as tooLong.
func readLine(r *bufio.Reader, limit int) (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if limit > 0 && len(buf)+len(chunk) > limit {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

func (c *chatSession) send(ctx context.Context, message string) error {
	message, err := agent.SanitizeInput(message, c.maxInput)
	if err != nil {
		return err
	}
	resp := c.agent.Run(ctx, agent.Request{
		Caller:    c.caller,
		SessionID: c.sessionID,
		Message:   message,
		AgentID:   c.agentID,
	})

	if c.showTrace {
		fmt.Fprint(c.out, tui.FormatTrace(resp.Trace, resp.Denied, c.styled))
	}
	rendered, err := c.render(resp.Answer)
	if err != nil {
		rendered, _ = tui.Plain(resp.Answer)
	}
	_, err = fmt.Fprint(c.out, rendered)
	return err
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	return w
}
