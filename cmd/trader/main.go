package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/crypto-signal-trader/internal/agent"
	"github.com/ducminhle1904/crypto-signal-trader/internal/config"
	"github.com/ducminhle1904/crypto-signal-trader/internal/events"
	"github.com/ducminhle1904/crypto-signal-trader/internal/exchange"
	"github.com/ducminhle1904/crypto-signal-trader/internal/execution"
	"github.com/ducminhle1904/crypto-signal-trader/internal/logger"
	"github.com/ducminhle1904/crypto-signal-trader/internal/monitoring"
	"github.com/ducminhle1904/crypto-signal-trader/internal/portfolio"
	"github.com/ducminhle1904/crypto-signal-trader/internal/reporting"
	"github.com/ducminhle1904/crypto-signal-trader/internal/risk"
	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	fileLog, err := logger.NewLogger(cfg.Instance)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fileLog.Close()

	gateway := buildGateway(cfg)
	log.Printf("Using %s gateway", gateway.GetName())

	pf := portfolio.NewInMemoryPortfolio(cfg.InitialBalance)
	riskEngine := risk.NewEngine(cfg.Risk, cfg.InitialBalance)
	executor := execution.NewExecutor(gateway)
	bus := events.NewBus()

	tradingAgent := agent.New(cfg.GateConfig(), riskEngine, executor, pf, bus, fileLog)

	health := monitoring.NewHealthChecker()
	health.SetAgentActive(true)

	go consumeEvents(bus.Subscribe(64), health)
	go serveMetrics(cfg.Monitoring.MetricsPort)
	go serveOps(cfg.Monitoring.HealthPort, tradingAgent, health, executor)

	log.Printf("Trading controller started (env=%s, instance=%s)", cfg.Environment, cfg.Instance)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	stats := tradingAgent.GetTradingStats()
	reporting.PrintTradingStats(stats)

	if err := reporting.ExportOrderJournal(cfg.JournalPath, executor.Orders()); err != nil {
		log.Printf("Failed to export order journal: %v", err)
	} else {
		log.Printf("Order journal written to %s", cfg.JournalPath)
	}
}

func buildGateway(cfg *config.Config) exchange.Gateway {
	if cfg.Exchange.Name == "paper" {
		return exchange.NewPaperGateway()
	}
	return exchange.NewBybitGateway(exchange.BybitConfig{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Category:  cfg.Exchange.Category,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
	})
}

func consumeEvents(ch <-chan events.Event, health *monitoring.HealthChecker) {
	for ev := range ch {
		switch ev.Type {
		case events.EventTradeExecuted:
			health.UpdateLastTrade(ev.Time)
			log.Printf("Trade executed: %s order=%s size=%v", ev.Symbol, ev.OrderID, ev.PositionSize)
		case events.EventCircuitBreaker:
			health.SetBreakerActive(true)
			log.Printf("CIRCUIT BREAKER: %s", ev.Reason)
		case events.EventEmergencyStop:
			health.SetAgentActive(false)
			log.Printf("EMERGENCY STOP: %s", ev.Reason)
		case events.EventError:
			health.AddError(ev.Reason)
			log.Printf("Error on %s: %s", ev.Symbol, ev.Reason)
		}
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server error: %v", err)
	}
}

// serveOps exposes the health endpoint plus a minimal operator surface:
// signal intake, emergency stop, breaker reset and stats.
func serveOps(port int, tradingAgent *agent.Agent, health *monitoring.HealthChecker, executor *execution.Executor) {
	mux := http.NewServeMux()
	mux.Handle("/health", health)

	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var sig types.TradeSignal
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if sig.Timestamp.IsZero() {
			sig.Timestamp = time.Now()
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		result := tradingAgent.ExecuteTrade(ctx, sig)
		health.SetActiveOrders(executor.Stats().Active)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("/emergency-stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		tradingAgent.EmergencyStop(ctx)
		health.SetAgentActive(false)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/reset-breaker", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		tradingAgent.ResetCircuitBreaker()
		health.SetBreakerActive(false)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tradingAgent.GetTradingStats())
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Ops server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Ops server error: %v", err)
	}
}
