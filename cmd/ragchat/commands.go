package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/app"
	"ragchat/internal/history"
	"ragchat/internal/service"
	"ragchat/internal/tui"
	"ragchat/internal/web"
)

func newWebCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the question dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.session(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.Config.Web.Addr = addr
			}
			srv, err := web.NewServer(a.Questions, a.History, a.Registry, a.Logger, web.Config{Addr: a.Config.Web.Addr, Title: a.Config.Web.Title})
			if err != nil {
				return err
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides web.addr")
	return cmd
}

func newChatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the corpus in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Logs would garble the full-screen UI.
			c.logger = c.logger.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))
			a, err := c.session(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			m := tui.New(ctx, a.Questions, a.History, a.Index.Count())
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}

func newIndexCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the corpus index, or report the cached one",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := app.NewGate(c.cfg, nil, c.logger)
			if err != nil {
				return err
			}
			idx, err := gate.Init(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks in %s\n", c.cfg.Corpus.Location, idx.Count(), gate.Dir())
			return nil
		},
	}
}

func newAskCmd(c *cli) *cobra.Command {
	var (
		chainType   string
		contextSize int
		asJSON      bool
		showTexts   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			answer, err := a.Questions.AskWith(cmd.Context(), strings.Join(args, " "), chainType, contextSize)
			if err != nil {
				return err
			}
			sources := service.ExtractSources(answer.Metadata)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(web.AskResponse{Answer: answer.Text, ChainType: answer.ChainType, Sources: sources, Texts: answer.Texts})
			}
			fmt.Fprintln(out, answer.Text)
			if len(answer.Texts) == 0 {
				fmt.Fprintln(out, "\nThis answer is unrelated to our context.")
				return nil
			}
			fmt.Fprintf(out, "\nSources: %s\n", strings.Join(sources, ", "))
			if showTexts {
				for i, text := range answer.Texts {
					fmt.Fprintf(out, "\n[%s]\n%s\n", sources[i], text)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chainType, "chain", "", "QA chain: stuff, map_reduce, refine or extractive (default search.chain_type)")
	cmd.Flags().IntVarP(&contextSize, "context-size", "k", 0, "number of chunks to retrieve (default search.context_size)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	cmd.Flags().BoolVar(&showTexts, "show-texts", false, "print the retrieved chunks")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List previously asked questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := history.New(c.cfg.HistoryFile()).Read()
			if err != nil {
				return err
			}
			for _, q := range questions {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}
}
