package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/chat"
	"github.com/RichardoC/compi/internal/config"
	"github.com/RichardoC/compi/internal/db"
	"github.com/RichardoC/compi/internal/llm"
	"github.com/RichardoC/compi/internal/logging"
	"github.com/RichardoC/compi/internal/models"
)

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "compi",
		Short:        "Companion CLI for the compi flat-share service",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newChatCmd(&verbose), newSeedCmd(&verbose), newEnvCmd())
	return root
}

func newChatCmd(verbose *bool) *cobra.Command {
	var historyDir string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the preferences assistant in the terminal",
		Long: "Talk to the preferences assistant in the terminal. History is kept between runs;\n" +
			"type /clear to forget it and /exit to quit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.NewCLI(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if historyDir == "" {
				historyDir, err = defaultHistoryDir()
				if err != nil {
					return err
				}
			}
			store, err := chat.NewFileStore(historyDir, cfg.ChatHistoryLimit)
			if err != nil {
				return err
			}
			svc, err := llm.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if !svc.Available() {
				return llm.ErrNoProvider
			}

			session := chat.NewSession(chat.HistoryKey, store, svc, logger)
			return runChat(cmd, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&historyDir, "history-dir", "", "directory for the chat history (default: user config dir)")
	return cmd
}

func runChat(cmd *cobra.Command, session *chat.Session, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	history, err := session.History(ctx)
	if err != nil {
		return err
	}
	for _, msg := range history {
		printMessage(out, msg)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit":
			return nil
		case "/clear":
			if err := session.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "(historial borrado)")
			continue
		}

		history, err := session.Send(ctx, line)
		if err != nil {
			return err
		}
		if n := len(history); n > 0 {
			printMessage(out, history[n-1])
		}
	}
}

func printMessage(out io.Writer, msg models.ChatMessage) {
	who := "tú"
	if msg.Role == models.RoleAssistant {
		who = "compi"
	}
	fmt.Fprintf(out, "%s: %s\n", who, msg.Text)
}

func newSeedCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <listings.json>",
		Short: "Load listings from a JSON file into the local database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.NewCLI(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var listings []models.Listing
			if err := json.Unmarshal(data, &listings); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			database, err := db.New(cfg.DBPath, cfg.ChatHistoryLimit)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.SaveListings(cmd.Context(), listings); err != nil {
				return err
			}
			logger.Info("seeded listings", zap.Int("count", len(listings)), zap.String("db", cfg.DBPath))
			fmt.Fprintf(cmd.OutOrStdout(), "%d listings saved to %s\n", len(listings), cfg.DBPath)
			return nil
		},
	}
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print which chat providers are configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			flags, err := config.ReadFlags()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(flags)
		},
	}
}

func defaultHistoryDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "compi"), nil
}
