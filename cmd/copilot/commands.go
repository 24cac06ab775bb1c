package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jwulff/copilot/internal/chat"
	"github.com/jwulff/copilot/internal/mcpserver"
	"github.com/jwulff/copilot/internal/session"
	"github.com/jwulff/copilot/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			c := rt.newChat()
			q, ok := c.Begin(strings.Join(args, " "))
			if !ok {
				return chat.ErrEmptyQuery
			}
			reply := c.Ask(ctx, q)
			c.Complete(reply)
			if reply.Err != nil {
				return reply.Err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderAnswer(reply.Text()))
			return nil
		},
	}
}

// renderAnswer renders markdown only when stdout is a terminal, so piped
// output stays plain.
func renderAnswer(text string) string {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return text
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		width = 80
	}
	return ui.NewMarkdown("").Render(text, min(width, 120))
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <files...>",
		Short: "Upload files for the assistant to ingest",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			fmt.Fprintln(cmd.OutOrStdout(), rt.newChat().Upload(ctx, args))
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show which account the stored session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			s := rt.sessions.Fetch(cmd.Context())
			if !s.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Banner())
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "login <google|github>",
		Short:     "Log in through the provider in a browser window",
		ValidArgs: []string{string(session.ProviderGoogle), string(session.ProviderGitHub)},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			fmt.Fprintln(cmd.ErrOrStderr(), "Complete the login in the browser window...")
			s, err := rt.sessions.BeginLogin(ctx, session.Provider(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Banner())
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the backend session and forget the stored cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "List archived conversations, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			if len(args) == 1 {
				turns, err := rt.store.Turns(args[0])
				if err != nil {
					return err
				}
				if len(turns) == 0 {
					return fmt.Errorf("conversation %s not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), chat.FormatTurns(turns))
				return nil
			}

			convs, err := rt.store.Conversations(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.FormatConversations(convs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum conversations to list")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ask/upload/whoami/history as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			bridge := &mcpserver.Bridge{
				Chat:     rt.newChat(),
				Sessions: rt.sessions,
				History:  rt.store,
			}
			if err := mcpserver.Serve(bridge, version); err != nil && !errors.Is(err, os.ErrClosed) {
				return err
			}
			return nil
		},
	}
}
