// Package main is the entry point for the advisory service: the HTTP edge plus
// one-shot helpers for calling and probing it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/curalink-advisory/internal/advisory"
	"github.com/curalink-advisory/internal/config"
	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/gateway"
	"github.com/curalink-advisory/internal/logging"
	"github.com/curalink-advisory/internal/telemetry"
	"github.com/curalink-advisory/pkg/gemini"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "advisory-server",
	Short: "Medical research advisory service backed by a generative model",
	Long: `advisory-server analyzes patient condition descriptions, suggests research
collaborations and summarizes clinical trials. Every valid request gets an
answer: replies the model cannot produce are replaced by local fallbacks that
are flagged as degraded.

Run "serve" for the HTTP API or "analyze" for a single request.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./advisory.yaml, ./config/advisory.yaml or /etc/advisory-service/advisory.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	var opts []config.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}

	manager, err := config.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return manager.GetConfig(), nil
}

// newGenerator builds the model client for the configured transport.
func newGenerator(ctx context.Context, cfg domain.GeminiConfig, timeout time.Duration) (gemini.Generator, error) {
	clientCfg := gemini.Config{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		Timeout:         timeout,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if cfg.Transport == "genai" {
		return gemini.NewGenAIClient(ctx, clientCfg)
	}
	return gemini.NewClient(clientCfg), nil
}

// app is everything a command needs to answer advisory requests.
type app struct {
	cfg     *domain.Config
	logger  *logrus.Logger
	service *advisory.Service
	closers []io.Closer
}

// configOverride adjusts the loaded configuration for one command.
type configOverride func(*domain.Config)

// withStdioSafeLogging keeps stdout free for protocol traffic.
func withStdioSafeLogging(cfg *domain.Config) {
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
}

// newApp wires configuration, logging, the model gateway, the cache tiers and
// telemetry into one advisory service.
func newApp(ctx context.Context, cmd *cobra.Command, overrides ...configOverride) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if cfg.Gemini.APIKey == "" {
		logger.Warn("No model API key configured; every answer will be a fallback")
	}

	generator, err := newGenerator(ctx, cfg.Gemini, cfg.Gateway.Timeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	gw := gateway.New(generator, gateway.ConfigFrom(cfg.Gateway, cfg.Gemini.Model), logger)

	opts := []advisory.Option{}
	if cfg.Cache.RedisURL != "" {
		client, err := advisory.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using the in-memory cache only")
		} else {
			a.closers = append([]io.Closer{redisCloser{client}}, a.closers...)
			opts = append(opts, advisory.WithRedis(client))
		}
	}

	store, err := telemetry.Open(cfg.Telemetry, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open telemetry store: %w", err)
	}
	a.closers = append([]io.Closer{store}, a.closers...)
	opts = append(opts, advisory.WithRecorder(store))

	service, err := advisory.NewService(advisory.Config{Prompt: cfg.Prompt, Cache: cfg.Cache}, gw, logger, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = service

	logger.WithFields(logrus.Fields{
		"model":     cfg.Gemini.Model,
		"transport": cfg.Gemini.Transport,
		"telemetry": cfg.Telemetry.Driver,
		"redis":     cfg.Cache.RedisURL != "",
	}).Info("Advisory service ready")
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close resource")
		}
	}
}

type redisCloser struct{ client *redis.Client }

func (r redisCloser) Close() error { return r.client.Close() }
