package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aikun/internal/config"
	"aikun/internal/conversation"
	"aikun/internal/llm"
	"aikun/internal/logging"
	"aikun/internal/pipeline"
	"aikun/internal/refine"
	"aikun/internal/reply"
	"aikun/internal/research"
	"aikun/internal/transport"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// ask / reset scope flags
	userID  string
	groupID string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aikun",
	Short: "AIくん - intent-routed conversational reply bot",
	Long: `aikun is a research-augmented reply bot for the LINE Messaging API.

Each inbound message is classified into a purchase, proximity, address,
describe or general intent, optionally enriched with live web and social
search evidence, and answered by a language model under strict reply
invariants (citations, marketplace links, guaranteed fallback text).

Run "aikun serve" to start the webhook server, or "aikun ask" to talk to
the pipeline from the terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
		logging.CloseAll()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Starts the HTTP server: POST /callback receives signed webhook
deliveries, GET / answers health checks. The config file is watched and
tunables (evidence caps, recency, quota) reload without a restart.`,
	RunE: runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message through the reply pipeline",
	Long: `Runs a single message through classification, research and synthesis
and prints the reply. Useful for prompt and classifier debugging without
a webhook round-trip.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the conversation history for a user or group",
	RunE:  runReset,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aikun.yaml", "Config file path")

	askCmd.Flags().StringVar(&userID, "user", "cli", "User id the message is attributed to")
	askCmd.Flags().StringVar(&groupID, "group", "", "Group id the message is attributed to")
	resetCmd.Flags().StringVar(&userID, "user", "", "User id whose history to clear")
	resetCmd.Flags().StringVar(&groupID, "group", "", "Group id whose history to clear")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// components bundles everything built from one config snapshot. The
// retunable pieces are kept so the config watcher can reach them.
type components struct {
	pipe        *pipeline.Pipeline
	aggregator  *research.Aggregator
	synthesizer *reply.Synthesizer
	store       *conversation.SQLiteStore
}

func buildComponents(cfg *config.Config) (*components, error) {
	if err := logging.Configure(logging.Settings{
		Debug:      cfg.Logging.Debug || verbose,
		Level:      cfg.Logging.Level,
		Dir:        cfg.Logging.Dir,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, err
	}

	store, err := conversation.NewSQLiteStore(cfg.Conversation.DatabasePath)
	if err != nil {
		return nil, err
	}

	searchTimeout := config.ParseDuration(cfg.Search.Timeout, 10*time.Second)
	cacheTTL := config.ParseDuration(cfg.Search.CacheTTL, 30*time.Minute)

	aggregator := research.NewAggregator(
		research.NewDuckDuckGoClient(searchTimeout),
		research.NewCache(cfg.Search.CacheSize, cacheTTL),
		research.Tunables{
			Locale:      cfg.Search.Locale,
			ResultCount: cfg.Search.ResultCount,
			RecencyDays: cfg.Reply.RecencyDays,
			FinalCap:    cfg.Reply.CitationCap,
		})

	synthesizer := reply.NewSynthesizer(llmClient, reply.Options{
		CitationCap:     cfg.Reply.CitationCap,
		AlwaysCrossSell: cfg.Reply.AlwaysCrossSell,
	})

	pipe := pipeline.New(
		conversation.NewManager(store, cfg.Conversation.HistoryWindow),
		refine.NewRefiner(llmClient),
		refine.NewExtractor(llmClient),
		aggregator,
		synthesizer,
		store,
		pipeline.Tunables{
			PendingLookbackTurns: cfg.Conversation.PendingLookbackTurns,
			DailyQuota:           cfg.Reply.DailyQuota,
		})

	return &components{
		pipe:        pipe,
		aggregator:  aggregator,
		synthesizer: synthesizer,
		store:       store,
	}, nil
}

// retune pushes a reloaded config into the running components. Secrets
// and addresses deliberately stay fixed until restart.
func (c *components) retune(cfg *config.Config) {
	c.aggregator.Retune(research.Tunables{
		Locale:      cfg.Search.Locale,
		ResultCount: cfg.Search.ResultCount,
		RecencyDays: cfg.Reply.RecencyDays,
		FinalCap:    cfg.Reply.CitationCap,
	})
	c.synthesizer.Retune(reply.Options{
		CitationCap:     cfg.Reply.CitationCap,
		AlwaysCrossSell: cfg.Reply.AlwaysCrossSell,
	})
	c.pipe.Retune(pipeline.Tunables{
		PendingLookbackTurns: cfg.Conversation.PendingLookbackTurns,
		DailyQuota:           cfg.Reply.DailyQuota,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.store.Close()

	sender := transport.NewLineReplyClient(cfg.Transport.ReplyEndpoint, cfg.Transport.ChannelToken)
	server := transport.NewServer(comps.pipe, sender, cfg.Transport.ChannelSecret, logger)

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		logger.Info("config reloaded", zap.String("path", configPath))
		comps.retune(next)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(cmd.Context()); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Transport.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", zap.String("addr", cfg.Transport.Addr))
		logging.Boot("listening on %s", cfg.Transport.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	answer := comps.pipe.Handle(ctx, pipeline.Inbound{
		UserID:  userID,
		GroupID: groupID,
		Text:    strings.Join(args, " "),
	})
	fmt.Println(answer)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if userID == "" && groupID == "" {
		return fmt.Errorf("provide --user or --group")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := conversation.NewSQLiteStore(cfg.Conversation.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	convID := conversation.DeriveConversationID(groupID, "", userID)
	if err := store.DeleteTurns(cmd.Context(), convID); err != nil {
		return fmt.Errorf("reset %s: %w", convID, err)
	}
	fmt.Printf("history cleared for %s\n", convID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	fmt.Printf("  llm:          %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("  search:       locale=%s results=%d\n", cfg.Search.Locale, cfg.Search.ResultCount)
	fmt.Printf("  history:      window=%d lookback=%d db=%s\n",
		cfg.Conversation.HistoryWindow, cfg.Conversation.PendingLookbackTurns, cfg.Conversation.DatabasePath)
	fmt.Printf("  reply:        citations=%d recency=%dd quota=%d\n",
		cfg.Reply.CitationCap, cfg.Reply.RecencyDays, cfg.Reply.DailyQuota)
	fmt.Printf("  transport:    addr=%s endpoint=%s\n", cfg.Transport.Addr, cfg.Transport.ReplyEndpoint)
	if cfg.LLM.APIKey == "" {
		fmt.Println("  warning:      no API key configured (set GEMINI_API_KEY)")
	}
	return nil
}
