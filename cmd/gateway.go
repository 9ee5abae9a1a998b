package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bugtriage/pkg/channel"
	"bugtriage/pkg/channel/slack"
	"bugtriage/pkg/channel/telegram"
	"bugtriage/pkg/config"
	"bugtriage/pkg/gateway"
	"bugtriage/pkg/logger"

	"github.com/spf13/cobra"
)

const (
	slackChannelName    = "slack"
	telegramChannelName = "telegram"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the chat gateway",
	Long:  "Connects the enabled chat channels, collects bug reports through conversations, and serves health and status endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(runCtx, cfg, adapters, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}
		defer func() {
			if err := svc.Close(); err != nil {
				log.Warn("Closing report storage failed", "error", err)
			}
		}()

		log.Info("Gateway started",
			"channels", enabledChannelNames(adapters),
			"storage", cfg.Storage.Path,
			"investigation", investigationMode(cfg.Investigation),
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.Slack.Enabled {
		adapter, err := slack.NewAdapter(cfg.Channels.Slack, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", slackChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}

func investigationMode(cfg config.InvestigationConfig) string {
	if !cfg.Enabled {
		return "checklist"
	}
	mode := cfg.Provider + "/" + cfg.Model
	if cfg.Auto {
		mode += " (auto)"
	}
	return mode
}
