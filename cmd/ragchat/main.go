package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/app"
	"ragchat/internal/config"
	"ragchat/internal/logging"
)

// cli carries what the persistent flags resolve to.
type cli struct {
	configPath string
	corpus     string
	logLevel   string

	cfg    *config.AppConfig
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "ragchat",
		Short:        "Ask questions about a folder of text documents",
		SilenceUsage: true,
		Long: `ragchat indexes the .txt files of a folder into a persistent vector index
and answers questions about them through a web dashboard or a terminal chat.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to YAML config file (default ./config.yaml, then ~/.config/ragchat/config.yaml)")
	root.PersistentFlags().StringVar(&c.corpus, "corpus", "", "folder with the .txt documents, overrides corpus.location")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error, overrides log.level")

	root.AddCommand(
		newWebCmd(c),
		newChatCmd(c),
		newIndexCmd(c),
		newAskCmd(c),
		newHistoryCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	_ = godotenv.Load()

	var err error
	if c.configPath == "" {
		c.cfg, _, err = config.LoadDefault()
	} else {
		c.cfg, err = config.Load(c.configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.corpus != "" {
		c.cfg.Corpus.Location = c.corpus
	}
	if c.logLevel != "" {
		c.cfg.Log.Level = c.logLevel
	}
	c.logger, err = logging.New(c.cfg.Log)
	if err != nil {
		return err
	}
	return nil
}

// session opens the index and wires the question service.
func (c *cli) session(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.logger)
}
