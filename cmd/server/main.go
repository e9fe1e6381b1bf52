package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	webAdapter "contract-ledger/internal/adapters/web"
	"contract-ledger/internal/app"
	"contract-ledger/internal/core"
	"contract-ledger/internal/db"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	amounts := core.DefaultAmountPolicy()
	audit := core.NewAuditRecorder()

	contracts := core.NewContractService(pool, audit, amounts)
	links := core.NewLinkService(pool, audit, amounts)
	billing := core.NewBillingService(pool, audit, amounts, links)
	rollups := core.NewRollupService(pool, amounts, links)
	scheduler := core.NewStraightLineScheduler(pool, amounts)
	revrec := core.NewRevRecService(pool, audit, scheduler)

	svc := app.NewAppService(pool, contracts, links, billing, rollups, revrec)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, logger, allowedOrigins)

	logger.Info("server starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
}
