package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tablechat/tablechat/internal/agent"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/server"
	"github.com/tablechat/tablechat/internal/session"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("addr") && addr != "" {
		cfg.ListenAddr = addr
	}

	logger, err := buildLogger(debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if !cfg.APIKeySet() {
		fields := []zap.Field{}
		if p, perr := config.SecretsPath(); perr == nil {
			fields = append(fields, zap.String("secrets_file", p))
		}
		logger.Warn("no agent API key configured; questions will fail until TABLECHAT_API_KEY or the secrets file provides one", fields...)
	}

	client := agent.NewClientWithBaseURL(
		cfg.APIKey, cfg.Model, cfg.HTTPTimeout(), cfg.MaxPayloadTokens, cfg.AgentBaseURL)
	store := session.NewStore(cfg.SessionTTL())
	srv := server.New(cfg, logger, store, client)

	logger.Info("starting",
		zap.String("model", cfg.Model),
		zap.Bool("configured", cfg.APIKeySet()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
