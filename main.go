package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/adapters/datasource"
	"github.com/natural2sql/engine/pkg/config"
	"github.com/natural2sql/engine/pkg/history"
	"github.com/natural2sql/engine/pkg/llm"
	"github.com/natural2sql/engine/pkg/logging"
	"github.com/natural2sql/engine/pkg/models"
	"github.com/natural2sql/engine/pkg/pipeline"
	"github.com/natural2sql/engine/pkg/prompts"
	"github.com/natural2sql/engine/pkg/schema"
	"github.com/natural2sql/engine/pkg/sqlguard"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting engine",
		zap.String("version", Version),
		zap.String("environment", cfg.Env),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model),
		zap.String("database_type", cfg.Database.Type))

	ctx := context.Background()

	db, err := datasource.New(ctx, &datasource.Config{
		Type:     cfg.Database.Type,
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, cfg.Pipeline.MaxRows, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	sc, err := schema.Load(ctx, db, cfg.Schema.LogicalNamesPath, cfg.Schema.GlossaryPath, logger)
	if err != nil {
		logger.Fatal("failed to load schema context", zap.Error(err))
	}

	client, err := llm.NewClient(cfg.AI.Provider, &llm.Config{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		APIKey:  cfg.AI.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build AI client", zap.Error(err))
	}

	recorder, err := history.NewSQLiteStore(cfg.History.Path, logger)
	if err != nil {
		logger.Fatal("failed to open history store", zap.Error(err))
	}
	defer recorder.Close()

	coordinator := pipeline.NewCoordinator(
		prompts.NewBuilder(sc, cfg.Pipeline.PromptBudgetChars),
		llm.NewGenerator(client, cfg.AI.Timeout(), logger),
		sqlguard.NewValidator(cfg.Pipeline.MaxRows, cfg.Database.StatementTimeout(),
			db.ReadOnly(), sc.RestrictedTerms(), logger),
		db,
		recorder,
		cfg.Pipeline.MaxAttempts,
		cfg.Pipeline.RetryOnSecurityRejection,
		logger,
	)

	sessionID := uuid.NewString()

	if len(os.Args) > 1 {
		ask(ctx, coordinator, sessionID, strings.Join(os.Args[1:], " "))
		return
	}

	fmt.Println("Enter a question (empty line to quit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}
		ask(ctx, coordinator, sessionID, question)
	}
}

func ask(ctx context.Context, coordinator *pipeline.Coordinator, sessionID, question string) {
	result := coordinator.Run(ctx, models.NewQueryRequest(sessionID, question))

	if result.State != pipeline.StateSucceeded {
		fmt.Fprintf(os.Stderr, "failed after %d attempt(s): %v\n", len(result.Attempts), result.Err)
		if result.Statement != "" {
			fmt.Fprintf(os.Stderr, "last statement: %s\n", result.Statement)
		}
		return
	}

	fmt.Printf("-- %s\n", result.Statement)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Execution.Rows); err != nil {
		fmt.Fprintf(os.Stderr, "failed to render result: %v\n", err)
		return
	}
	if result.Execution.Truncated {
		fmt.Printf("(%d rows shown, result truncated)\n", result.Execution.RowCount)
	} else {
		fmt.Printf("(%d rows)\n", result.Execution.RowCount)
	}
}
