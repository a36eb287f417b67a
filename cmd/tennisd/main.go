// tennisd is the tennis trading daemon. It polls live match scores,
// prices win markets from the serve model and trades the edge on a
// paper account.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courtedge/tennis-agents/pkg/kalshi"
	"github.com/courtedge/tennis-agents/pkg/sportscore"
	"github.com/courtedge/tennis-agents/pkg/trader/decision"
	"github.com/courtedge/tennis-agents/pkg/trader/metrics"
	"github.com/courtedge/tennis-agents/pkg/trader/orchestrator"
	"github.com/courtedge/tennis-agents/pkg/trader/paper"
	"github.com/courtedge/tennis-agents/pkg/trader/policy"
	"github.com/courtedge/tennis-agents/pkg/trader/streaming"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Flags
	httpAddr     = flag.String("http", ":8080", "HTTP server address for status API")
	demoMode     = flag.Bool("demo", false, "Use the Kalshi demo exchange")
	seriesTicker = flag.String("series", "", "Kalshi series ticker to narrow market matching")
	pollInterval = flag.Duration("poll", 5*time.Second, "Score poll interval")
	bestOfSets   = flag.Int("best-of", 3, "Sets per match (3 or 5)")
	minEdge      = flag.Float64("min-edge", 2.0, "Minimum edge in cents")
	feeCents     = flag.Float64("fee", 1.5, "Per-contract fee in cents")
	kellyFrac    = flag.Float64("kelly", 0.25, "Fraction of full Kelly")
	maxContracts = flag.Int64("max-contracts", 10, "Maximum contracts per order")
	initialBal   = flag.Float64("balance", 100000, "Initial paper balance in cents")
	wsQuotes     = flag.Bool("stream", false, "Stream quotes over the Kalshi websocket (needs credentials)")
	tightLimits  = flag.Bool("tight", false, "Use tight risk limits")
	verbose      = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting tennis trading daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	agent, err := newAgent()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	agent.orch.OnStageComplete(func(result *orchestrator.StageResult) {
		if *verbose || !result.Success {
			log.Printf("[%s] %s (%.2fms)", result.Stage, statusStr(result.Success),
				float64(result.Duration.Microseconds())/1000)
			if result.Error != "" {
				log.Printf("  Error: %s", result.Error)
			}
		}
	})

	agent.orch.OnDecision(func(s *orchestrator.Session, d decision.Decision) {
		log.Printf("[SIGNAL] %s %d %s (edge: %.1fc) %s",
			d.Action, d.Contracts, s.Ticker, d.EdgeCents, s.MatchName())
	})

	agent.orch.OnError(func(err error) {
		log.Printf("[ERROR] %v", err)
	})

	go agent.startHTTP()

	if err := agent.orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start orchestrator: %v", err)
	}

	log.Printf("Daemon running (demo=%v, http=%s)", *demoMode, *httpAddr)
	log.Printf("WebSocket streaming available at ws://%s/ws", *httpAddr)
	log.Println("Press Ctrl+C to stop")

	<-sigCh
	log.Println("Shutting down...")

	agent.orch.Stop()
	if agent.kalshiStream != nil {
		agent.kalshiStream.Close()
	}
	cancel()

	stats := agent.paperEngine.GetStats()
	log.Printf("Final Stats: PnL=%.1fc, Trades=%d, WinRate=%.1f%%",
		stats.TotalPnL.InexactFloat64(),
		stats.TotalTrades,
		stats.WinRate.Mul(decimal.NewFromInt(100)).InexactFloat64())

	log.Println("Goodbye!")
}

type tradingAgent struct {
	feedClient   *sportscore.Client
	kalshiClient *kalshi.Client
	kalshiStream *kalshi.Stream
	policyEngine *policy.Engine
	paperEngine  *paper.Engine
	orch         *orchestrator.Orchestrator
	metrics      *metrics.TradingMetrics
	streamHub    *streaming.Hub
}

func newAgent() (*tradingAgent, error) {
	agent := &tradingAgent{
		metrics:   metrics.NewTradingMetrics(),
		streamHub: streaming.NewHub(),
	}

	go agent.streamHub.Run()

	feedKey := os.Getenv("SPORTSCORE_API_KEY")
	if feedKey == "" {
		return nil, fmt.Errorf("SPORTSCORE_API_KEY is required")
	}
	agent.feedClient = sportscore.NewClient(feedKey)

	// Market data works unauthenticated; a signer is only needed for
	// live order placement.
	var signer *kalshi.Signer
	keyID := os.Getenv("KALSHI_API_KEY_ID")
	keyPath := os.Getenv("KALSHI_PRIVATE_KEY_PATH")
	if keyID != "" && keyPath != "" {
		var err error
		signer, err = kalshi.NewSignerFromFile(keyID, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Kalshi key: %w", err)
		}
		log.Printf("Kalshi signer initialized (key: %s)", keyID)
	} else {
		log.Println("No Kalshi credentials - market data only")
	}

	kalshiOpts := []kalshi.ClientOption{}
	if *demoMode {
		kalshiOpts = append(kalshiOpts, kalshi.WithBaseURL(kalshi.DemoBaseURL))
	}
	agent.kalshiClient = kalshi.NewClient(signer, kalshiOpts...)

	geoCtx, geoCancel := context.WithTimeout(context.Background(), 10*time.Second)
	check, err := policy.NewGeoBlocker().PerformJurisdictionCheck(geoCtx)
	geoCancel()
	switch {
	case err != nil:
		log.Printf("Jurisdiction check unavailable: %v", err)
	case check.CountryCode == "":
		// Lookup failure is not a block.
		log.Printf("Jurisdiction check unavailable: %s", check.Reason)
	case !check.Allowed:
		return nil, fmt.Errorf("jurisdiction check failed: %s", check.Reason)
	default:
		log.Printf("Jurisdiction check passed (%s)", check.CountryCode)
	}

	limits := policy.DefaultRiskLimits()
	if *tightLimits {
		limits = policy.TightRiskLimits()
	}
	agent.policyEngine = policy.NewEngine(limits)

	paperConfig := paper.DefaultConfig()
	paperConfig.InitialBalanceCents = decimal.NewFromFloat(*initialBal)
	paperConfig.FeePerContractCents = decimal.NewFromFloat(*feeCents)
	agent.paperEngine = paper.NewEngine(paperConfig)

	agent.paperEngine.OnTrade(func(trade *paper.Trade) {
		log.Printf("[TRADE] %s %d %s @ %sc (fee: %sc)",
			trade.Action, trade.Contracts, trade.Ticker,
			trade.PriceCents, trade.FeeCents)
		agent.streamHub.BroadcastTrade(trade)
	})
	agent.paperEngine.OnSettle(func(ticker string, pnl decimal.Decimal) {
		log.Printf("[SETTLE] %s PnL=%sc", ticker, pnl)
	})

	orchConfig := orchestrator.DefaultWorkflowConfig()
	orchConfig.BestOfSets = *bestOfSets
	orchConfig.PollInterval = *pollInterval
	orchConfig.Decision.MinEdgeCents = *minEdge
	orchConfig.Decision.FeeCents = *feeCents
	orchConfig.Decision.KellyFraction = *kellyFrac
	orchConfig.Decision.MaxContracts = *maxContracts

	markets := orchestrator.NewKalshiMarkets(agent.kalshiClient, *seriesTicker)

	if *wsQuotes {
		if signer == nil {
			return nil, fmt.Errorf("-stream requires Kalshi credentials")
		}
		streamConfig := kalshi.DefaultStreamConfig()
		if *demoMode {
			streamConfig.URL = kalshi.DemoStreamURL
		}
		agent.kalshiStream = kalshi.NewStream(streamConfig, signer, kalshi.StreamHandlers{
			OnStateChange: func(old, new kalshi.StreamState) {
				log.Printf("[STREAM] %s -> %s", old, new)
			},
			OnError: func(err error) {
				log.Printf("[STREAM] error: %v", err)
			},
		})

		dialCtx, dialCancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := agent.kalshiStream.Connect(dialCtx)
		dialCancel()
		if err != nil {
			// REST quotes still work without the stream.
			log.Printf("[STREAM] connect failed, falling back to REST quotes: %v", err)
		} else {
			markets.UseStream(agent.kalshiStream)
			log.Println("Kalshi quote stream connected")
		}
	}

	orch, err := orchestrator.NewOrchestrator(
		orchConfig,
		agent.feedClient,
		markets,
		agent.policyEngine,
		agent.paperEngine,
		agent.metrics,
		agent.streamHub,
	)
	if err != nil {
		return nil, err
	}
	agent.orch = orch

	return agent, nil
}

func (a *tradingAgent) startHTTP() {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Status endpoint
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.orch.Status())
	})

	// Active match sessions
	mux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.orch.GetSessions())
	})

	// Stats endpoint
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.paperEngine.GetStats())
	})

	// Policy endpoint
	mux.HandleFunc("/policy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.policyEngine.Status())
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", a.streamHub.ServeWS)

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("HTTP server listening on %s", *httpAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

func statusStr(success bool) string {
	if success {
		return "OK"
	}
	return "FAILED"
}
