package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bugtriage/pkg/config"
	"bugtriage/pkg/conversation"
	"bugtriage/pkg/logger"
	"bugtriage/pkg/report"
	"bugtriage/pkg/storage"
	"bugtriage/pkg/ui/chat"

	"github.com/spf13/cobra"
)

const terminalTransport = "terminal"

var plainReport bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "File a bug report from the terminal",
	Long:  "Walks through the same questionnaire the chat bot uses and stores the finished report in the configured database.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		log, err := reportLogger(cfg.Logging, plainReport)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := storage.Open(ctx, cfg.Storage.Path)
		if err != nil {
			fmt.Printf("failed to open report storage: %v\n", err)
			return
		}
		defer store.Close()

		ctrl := newLocalController(ctx, store, time.Now, log)

		save := func(ctx context.Context, r report.BugReport) (string, error) {
			if err := store.SaveReport(ctx, r); err != nil {
				return "", err
			}
			return fmt.Sprintf("Saved %s to %s", r.ID, cfg.Storage.Path), nil
		}

		info := chat.Info{UserID: os.Getenv("USER"), ChannelID: terminalTransport}
		if plainReport {
			if err := runPlainReport(ctx, ctrl, save, info, os.Stdin, os.Stdout); err != nil {
				fmt.Printf("report failed: %v\n", err)
			}
			return
		}

		if _, err := chat.Run(ctx, ctrl, save, info); err != nil {
			fmt.Printf("report walkthrough failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().BoolVar(&plainReport, "plain", false, "use line-by-line prompts instead of the full-screen interface")
}

// reportLogger discards logs in TUI mode, where the terminal belongs to the
// walkthrough.
func reportLogger(cfg config.LoggingConfig, plain bool) (*slog.Logger, error) {
	if !plain {
		return slog.New(slog.DiscardHandler), nil
	}
	return logger.New(cfg)
}

// newLocalController builds a controller that draws report IDs from the
// shared database sequence, so it can run alongside the gateway.
func newLocalController(ctx context.Context, store *storage.Store, now func() time.Time, log *slog.Logger) *conversation.Controller {
	return conversation.NewController(
		conversation.WithTransport(terminalTransport),
		conversation.WithIDGenerator(func(at time.Time) (string, error) {
			return store.NextReportID(ctx, at)
		}),
		conversation.WithClock(now),
		conversation.WithLogger(log),
	)
}

func runPlainReport(ctx context.Context, conv chat.Conversation, save chat.SaveFunc, info chat.Info, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	printBotMessage(out, conv.Start(info.UserID, info.ChannelID).Text)
	for {
		fmt.Fprint(out, "👤 ")
		if !scanner.Scan() {
			conv.Cancel(info.UserID, info.ChannelID)
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		if isExitCommand(text) {
			printBotMessage(out, conv.Cancel(info.UserID, info.ChannelID).Text)
			return nil
		}

		reply, err := conv.Submit(info.UserID, info.ChannelID, text)
		switch {
		case errors.Is(err, conversation.ErrEmptyRequiredAnswer):
			printBotMessage(out, reply.Text)
			continue
		case err != nil:
			return err
		}

		printBotMessage(out, reply.Text)
		if !reply.Completed {
			continue
		}

		note, err := save(ctx, *reply.Report)
		if err != nil {
			return fmt.Errorf("save %s: %w", reply.Report.ID, err)
		}
		printBotMessage(out, note)
		return nil
	}
}

func printBotMessage(out io.Writer, message string) {
	lines := botLines(message)
	for _, line := range lines {
		fmt.Fprintf(out, "🐛 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Fprintln(out)
	}
}

func botLines(message string) []string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(message, "*", ""))
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

// isExitCommand also accepts the chat cancel words.
func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q", "cancel", "stop", "nevermind", "never mind":
		return true
	default:
		return false
	}
}
