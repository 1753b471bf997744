package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/biz/usecase"
	"github.com/beregbot/bereg/internal/conf"
	"github.com/beregbot/bereg/internal/data"
	"github.com/beregbot/bereg/internal/infra/lark"
	"github.com/beregbot/bereg/internal/infra/suggest"
	"github.com/beregbot/bereg/internal/server"
	"github.com/beregbot/bereg/internal/service"
	"github.com/beregbot/bereg/mcpserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := conf.LoadFromEnv()

	logger, err := newLogger(config.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// MCP mode serves the knowledge base over stdio instead of running the bot
	mcpMode := len(os.Args) > 1 && os.Args[1] == "mcp"

	if !mcpMode {
		if err := config.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}

	knowledgeRepo, err := data.NewKnowledgeRepo(config.Store.KnowledgeDBPath)
	if err != nil {
		log.Fatalf("Failed to open knowledge store: %v", err)
	}
	defer knowledgeRepo.Close()

	questionRepo, err := data.NewQuestionRepo(config.Store.QuestionsDBPath)
	if err != nil {
		log.Fatalf("Failed to open question store: %v", err)
	}
	defer questionRepo.Close()

	matcher := usecase.NewMatcher(
		config.Replies.Matcher.SemanticThreshold,
		config.Replies.Matcher.KeywordThreshold,
		logger,
	)
	knowledgeUC := usecase.NewKnowledgeUsecase(knowledgeRepo, matcher, logger)
	pendingUC := usecase.NewPendingUsecase(questionRepo, logger)

	ctx := context.Background()
	if err := knowledgeUC.Seed(ctx); err != nil {
		log.Fatalf("Failed to seed knowledge base: %v", err)
	}
	if err := knowledgeUC.Load(ctx); err != nil {
		log.Fatalf("Failed to load knowledge base: %v", err)
	}
	if err := pendingUC.Rehydrate(ctx); err != nil {
		log.Fatalf("Failed to restore pending questions: %v", err)
	}
	logger.Info("stores ready",
		zap.Int("knowledgeEntries", knowledgeUC.Len()),
		zap.Int("pendingQuestions", pendingUC.Count()))

	if mcpMode {
		kb := mcpserver.NewServer(matcher, knowledgeUC, pendingUC)
		if err := kb.Run(ctx); err != nil {
			log.Fatalf("MCP server error: %v", err)
		}
		return
	}

	larkClient := lark.NewClient(config.Lark.AppID, config.Lark.AppSecret, logger)
	notifier := lark.NewNotifier(larkClient)
	suggester := suggest.NewSuggester(
		config.Suggest.APIKey,
		config.Suggest.BaseURL,
		config.Suggest.Model,
		logger,
	)

	texts := config.Replies.ToTexts()
	escalationUC := usecase.NewEscalationUsecase(
		matcher,
		knowledgeUC,
		pendingUC,
		notifier,
		suggester,
		texts,
		config.Staff.ChatID,
		config.Staff.ThreadID,
		logger,
	)

	qaSvc := service.NewQAService(
		escalationUC,
		knowledgeUC,
		pendingUC,
		conf.NewStaffList(config.Staff.AdminIDs),
		notifier,
		texts,
		logger,
	)

	srv := server.NewBotServer(larkClient, qaSvc, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		srv.Stop()
		os.Exit(0)
	}()

	logger.Info("starting bot")
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
