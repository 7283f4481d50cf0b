// Verdict - Claims decisioning that deploys in 60 seconds.
// Copyright (c) 2025 claimcare
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/claimcare/verdict/internal/api"
	"github.com/claimcare/verdict/internal/approval"
	"github.com/claimcare/verdict/internal/bus"
	"github.com/claimcare/verdict/internal/cache"
	"github.com/claimcare/verdict/internal/decision"
	"github.com/claimcare/verdict/internal/domain"
	"github.com/claimcare/verdict/internal/fraud"
	"github.com/claimcare/verdict/internal/repository"
	"github.com/claimcare/verdict/internal/rules"
	"github.com/claimcare/verdict/internal/sla"
	"github.com/claimcare/verdict/internal/velocity"
	"github.com/claimcare/verdict/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("VERDICT_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting verdict",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("VERDICT_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Rule Engine with velocity getter
	engine, err := rules.NewEngine(velocitySvc.GetVelocityGetter())
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Builtin coverage rules first, then tenant-wide overrides from the
	// database. Database rules with the same ID win.
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		slog.Error("failed to load builtin rules", "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Fraud Assessor. The blacklist comes from the
	// repository; model signals fall back to the seeded stand-in until
	// a scoring service is wired in.
	assessor := fraud.NewAssessor(fraud.NewRandomProvider(time.Now().UnixNano()), repo)
	slog.Info("fraud assessor initialized")

	// Initialize Decision Pipeline
	pipeline := decision.NewPipeline(repo, engine, assessor, velocitySvc, logger)
	slog.Info("decision pipeline initialized", "engine_version", decision.EngineVersion)

	// Initialize Approval Manager and SLA Monitor
	approvals := approval.NewManager(repo)
	monitor := sla.NewMonitor()

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("VERDICT_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, pipeline)

		tenantIDs := []string{}
		if envTenants := os.Getenv("VERDICT_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, pipeline, approvals, monitor, velocitySvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("verdict is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("verdict shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// loadRulesFromDatabase loads tenant-wide rules from the database into
// the engine, on top of the builtin set.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with builtins only - overrides can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - builtins active, configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═════════════════════════════════════════╗")
	fmt.Println("  ║               ⚖️ VERDICT                 ║")
	fmt.Println("  ║      Claims Decisioning Engine          ║")
	fmt.Println("  ║     Every claim, fairly decided.        ║")
	fmt.Println("  ╚═════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /claims                   - File a claim")
	fmt.Println("    GET  /claims                   - List claims")
	fmt.Println("    GET  /claims/{id}              - Get claim by ID")
	fmt.Println("    POST /claims/{id}/documents    - Attach a document")
	fmt.Println("    POST /claims/{id}/evaluate     - Evaluate a claim")
	fmt.Println("    GET  /claims/{id}/sla          - SLA status for a claim")
	fmt.Println("    POST /claims/{id}/approvals    - Record an approval action")
	fmt.Println("    GET  /claims/{id}/approvals    - Approval matrix and ledger")
	fmt.Println("    POST /claims/{id}/escalate     - Run the escalation check")
	fmt.Println("    GET  /evaluations/{id}         - Get evaluation by ID")
	fmt.Println("    GET  /reports/ojk              - OJK compliance report")
	fmt.Println("    GET  /reports/sla-metrics      - SLA stage metrics")
	fmt.Println("    GET  /reports/sla-breaches     - Claims at breach risk")
	fmt.Println("    GET  /rules                    - List all rules")
	fmt.Println("    POST /rules                    - Create a new rule")
	fmt.Println("    POST /rules/reload             - Hot-reload rules from database")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
