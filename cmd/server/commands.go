package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"gwi.com/pdf-chatbot/internal/api"
	"gwi.com/pdf-chatbot/internal/auth"
	"gwi.com/pdf-chatbot/internal/chunker"
	"gwi.com/pdf-chatbot/internal/config"
	"gwi.com/pdf-chatbot/internal/core"
	"gwi.com/pdf-chatbot/internal/index"
	"gwi.com/pdf-chatbot/internal/ingest"
	"gwi.com/pdf-chatbot/internal/llm"
	"gwi.com/pdf-chatbot/internal/logger"
	"gwi.com/pdf-chatbot/internal/store"
)

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		os.Setenv("CONFIG_FILE", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.New(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

type application struct {
	store   *store.SQLiteStore
	service *core.Service
}

func (a *application) Close() error {
	return a.store.Close()
}

func newApplication(cfg *config.Config) (*application, error) {
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLMProvider, llm.Options{
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		BaseURL:        cfg.OpenAIBaseURL,
		Timeout:        cfg.LLMTimeout,
		MaxRetries:     2,
	})
	if err != nil {
		dbStore.Close()
		return nil, err
	}

	indexes, err := index.NewManager(cfg.IndexRoot, provider, cfg.EmbedBatchSize)
	if err != nil {
		dbStore.Close()
		return nil, err
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		dbStore.Close()
		return nil, err
	}

	rule, err := auth.NewCredentialRule(cfg.CredentialPrefix, cfg.CredentialLength)
	if err != nil {
		dbStore.Close()
		return nil, err
	}

	svc := core.NewService(core.Deps{
		Credentials: core.NewCredentialStore(dbStore, rule),
		Queries:     dbStore,
		Indexes:     indexes,
		Extractor:   ingest.NewPDFExtractor(),
		Splitter:    splitter,
		Engine:      core.NewConversationEngine(provider, cfg.RetrievalTopK),
		Tokens:      auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
	})

	slog.Info("Application initialized",
		"provider", provider.Name(),
		"embedding_model", provider.EmbeddingModel(),
		"index_root", cfg.IndexRoot,
	)
	return &application{store: dbStore, service: svc}, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	router := api.NewRouter(api.NewAPIHandler(app.service, cfg.MaxUploadBytes))
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // uploads embed the whole document before replying
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server. Press Ctrl+C to quit.", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exiting gracefully")
	return nil
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Opening the store runs the migrations.
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	defer dbStore.Close()

	slog.Info("Database schema is up to date", "database", cfg.DatabaseURL)
	return nil
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	entries, err := dbStore.ListQueries(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(cmd.Root().Writer)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tASKED AT\tQUESTION\tANSWER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Format(time.RFC3339), oneLine(e.Question, 60), oneLine(e.Answer, 80))
	}
	return tw.Flush()
}

// oneLine flattens s to a single line of at most limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
