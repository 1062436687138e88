package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/config"
	"github.com/abhisek/redpen/internal/llm"
	"github.com/abhisek/redpen/internal/session"
	"github.com/abhisek/redpen/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "redpen",
	Short: "Supervised essay revision",
	Long: "redpen finds errors in a student's essay with two fine-tuned models, then times,\n" +
		"diffs and verifies every revision the student makes.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setLogger(os.Stderr, verbose)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every
// subcommand through cmd.Context().
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides REDPEN_DB env var)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reviseCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

func setLogger(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves the layered configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewLoader(slog.Default()).Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DB = p
	}
	return cfg, nil
}

// resolveDBPath returns the database path from the config (which already
// carries --db and REDPEN_DB), else the default XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}

// env is the wired application used by every command that touches sessions.
type env struct {
	cfg   *config.Config
	store *store.Store
	svc   *session.Service
}

func (e *env) Close() error {
	return e.store.Close()
}

// openStore loads config and opens the database without building a
// provider, for read-only commands.
func openStore(cmd *cobra.Command) (*config.Config, *store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, s, nil
}

// openEnv opens the store and builds the model gateway and session service.
// A missing credential does not fail here; model calls fail instead.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, s, err := openStore(cmd)
	if err != nil {
		return nil, err
	}

	eventRepo := s.EventRepo()
	provider, err := llm.NewProviderOrUnconfigured(cmd.Context(), cfg.LLM(), eventRepo)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build LLM provider: %w", err)
	}
	gw := llm.NewGateway(provider, cfg.GatewayOptions()...)

	svc := session.NewService(session.Deps{
		Sessions: s.SessionRepo(),
		Journal:  eventRepo,
		Analyzer: analysis.New(gw, cfg.Analysis()),
	})
	return &env{cfg: cfg, store: s, svc: svc}, nil
}
