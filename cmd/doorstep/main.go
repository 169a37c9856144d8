package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"doorstep/internal/api"
	"doorstep/internal/chat"
	"doorstep/internal/config"
	"doorstep/internal/conversation"
	"doorstep/internal/llm"
	"doorstep/internal/newsletter"
	"doorstep/internal/router"
	"doorstep/internal/search"
	"doorstep/internal/store"
	"doorstep/internal/tools"
	"doorstep/internal/types"
	"doorstep/internal/verify"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "doorstep",
	Short: "doorstep - conversational neighborhood newsletter service",
	Long: `doorstep generates hyper-local neighborhood newsletters through a
conversational interface.

It discovers local events by search, verifies them against their sources
before publication, and lets residents refine a draft in plain language:
change the tone, add or remove events, or accept the issue when it reads
right. An LLM classifies requests but never mutates a newsletter directly;
every change flows through the lifecycle manager.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the doorstep HTTP API server",
	Long: `Starts the HTTP API on the configured address.

The server exposes neighborhoods, newsletters, conversations, and the
tool registry under /api/v1. Generation runs in background jobs; the
server drains them before exiting on SIGINT or SIGTERM.`,
	RunE: runServe,
}

var generateCmd = &cobra.Command{
	Use:   "generate [neighborhood-id]",
	Short: "Generate a newsletter for a neighborhood and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the built-in tools",
	RunE:  runTools,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "doorstep.yaml", "path to the config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(toolsCmd)
}

// stack holds the wired service graph shared by the serve and generate
// commands.
type stack struct {
	store       store.Store
	newsletters *newsletter.Manager
	api         *api.Server
}

func (s *stack) close() {
	s.newsletters.Close()
	if err := s.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
}

func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	provider := search.NewLLMProvider(client)
	postcodes := search.NewPostcodeClient(10 * time.Second)
	fetcher := search.NewHTTPFetcher(config.Duration(cfg.Verification.FetchTimeout, 15*time.Second))
	finder := search.NewEventFinder(provider, postcodes, client, cfg.Newsletter.MinEvents, logger)

	registry := tools.NewRegistry(logger)
	tools.RegisterBuiltins(registry, tools.Deps{
		Provider: provider,
		Events:   finder,
		LLM:      client,
	})
	executor := tools.NewExecutor(registry, config.Duration(cfg.Tools.Timeout, 30*time.Second), logger)

	rtr := router.New(client, cfg.Router.ConfidenceThreshold, logger)
	gate := verify.NewGate(fetcher, provider, cfg.Verification.SearchAttempts, logger)
	composer := newsletter.NewComposer(finder, gate, postcodes, client, logger)

	convs := conversation.NewManager(st, logger)
	newsletters := newsletter.NewManager(
		st, convs, composer, rtr,
		cfg.Newsletter.UpdateRetries,
		config.Duration(cfg.Newsletter.GenerationTimeout, 3*time.Minute),
		logger,
	)
	chatSvc := chat.NewService(st, convs, newsletters, rtr, executor, client, logger)

	return &stack{
		store:       st,
		newsletters: newsletters,
		api:         api.NewServer(st, newsletters, convs, chatSvc, registry, executor, logger),
	}, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	default:
		if dir := filepath.Dir(cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		return store.NewSQLite(cfg.Store.Path, logger)
	}
}

func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		gc := llm.DefaultGeminiConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			gc.Model = cfg.LLM.Model
		}
		client, err := llm.NewGeminiClientWithConfig(ctx, gc)
		if err != nil {
			return nil, err
		}
		return llm.WithRetry(client), nil
	default:
		oc := llm.DefaultOpenAIConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			oc.Model = cfg.LLM.Model
		}
		client, err := llm.NewOpenAIClientWithConfig(oc)
		if err != nil {
			return nil, err
		}
		return llm.WithRetry(client), nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: s.api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("doorstep listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.String("llm_provider", cfg.LLM.Provider))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}

	// Drain background generation jobs before the store closes.
	s.newsletters.Wait()
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	n, err := s.newsletters.StartGeneration(ctx, args[0], "")
	if err != nil {
		return err
	}
	fmt.Printf("Generating newsletter %s...\n", n.ID)

	s.newsletters.Wait()

	n, err = s.newsletters.Get(ctx, n.ID)
	if err != nil {
		return err
	}
	if n.Status != types.StatusGenerated {
		return fmt.Errorf("generation finished with status %s: %s", n.Status, n.ErrorMessage)
	}

	fmt.Printf("Generated %q with %d events (%d verified sources, %s)\n",
		n.Content.Header.Title,
		len(n.Content.Events),
		n.Metadata.SourceCount,
		n.Metadata.VerificationStatus)
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	// Listing never executes a tool, so no LLM client or network access
	// is wired in.
	registry := tools.NewRegistry(logger)
	tools.RegisterBuiltins(registry, tools.Deps{})

	for _, name := range registry.Names() {
		tool := registry.Get(name)
		if tool == nil {
			continue
		}
		fmt.Printf("%-28s %-10s %s\n", tool.Name, tool.Category, tool.Description)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
