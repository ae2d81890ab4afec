package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/soullab/oracle-choreography/agent"
	"github.com/soullab/oracle-choreography/api"
	"github.com/soullab/oracle-choreography/api/handlers"
	"github.com/soullab/oracle-choreography/choreography"
	"github.com/soullab/oracle-choreography/communication"
	"github.com/soullab/oracle-choreography/config"
	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/metrics"
	"github.com/soullab/oracle-choreography/orchestrator"
	"github.com/soullab/oracle-choreography/registry"
	"github.com/soullab/oracle-choreography/selection"
	"github.com/soullab/oracle-choreography/storage"
)

// staticGenerator answers without an LLM backend. Used when OPENAI_API_KEY
// is absent so local development still produces complete turns.
type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, profile core.PersonalityProfile, input string, tctx core.TurnContext) (core.ResponsePayload, error) {
	return core.ResponsePayload{
		Text: profile.Name + " hears you. Breathe, and tell me more about what brought you here.",
	}, nil
}

func main() {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		// No external broker configured: run an embedded NATS server.
		srv, err := natsserver.NewServer(&natsserver.Options{Port: 4222})
		if err != nil {
			log.Fatalf("Failed to create embedded NATS server: %v", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(10 * time.Second) {
			log.Fatal("Embedded NATS server did not become ready")
		}
		natsURL = srv.ClientURL()
		log.Printf("Embedded NATS server listening at %s", natsURL)
	}

	broker, err := core.NewNATSBroker(natsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer broker.Close()

	reg, err := registry.Load(config.Getenv("PROFILES_DIR", "profiles"))
	if err != nil {
		log.Fatalf("Failed to load personality profiles: %v", err)
	}

	rules, err := choreography.LoadRuleSet(config.Getenv("RULES_PATH", "rules.json"))
	if err != nil {
		log.Fatalf("Failed to load choreography rules: %v", err)
	}

	var gen agent.Generator
	if os.Getenv("OPENAI_API_KEY") != "" {
		gen, err = agent.NewOpenAIGenerator(agent.DefaultLLMConfig())
		if err != nil {
			log.Fatalf("Failed to build generator: %v", err)
		}
	} else {
		log.Println("Warning: OPENAI_API_KEY not set, using static responses")
		gen = staticGenerator{}
	}

	selector, err := selection.NewEngine(reg, selection.Config{
		Strategy: config.Getenv("SELECTION_STRATEGY", selection.StrategyContextOptimal),
		Weights:  selection.DefaultWeights(),
	}, rand.NewSource(time.Now().UnixNano()))
	if err != nil {
		log.Fatalf("Failed to build selection engine: %v", err)
	}

	aggregator := metrics.NewAggregator(metrics.DefaultWindowSize, nil)
	ruleEngine := choreography.NewEngine(reg, rules, rand.NewSource(time.Now().UnixNano()), nil)

	archive, err := storage.OpenArchive(storage.DefaultArchiveConfig(config.Getenv("DATA_DIR", "data")))
	if err != nil {
		log.Fatalf("Failed to open turn archive: %v", err)
	}
	defer archive.Close()

	hub := communication.NewHub()

	orch, err := orchestrator.New(reg, gen, selector, aggregator, ruleEngine, orchestrator.Options{
		Archive: archive,
		Events:  core.MultiSink{broker, hub},
	})
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	deps := &handlers.Deps{Orchestrator: orch, Registry: reg, Hub: hub}

	addr := config.Getenv("LISTEN_ADDR", ":8080")
	log.Printf("Oracle choreography orchestrator listening on %s", addr)
	if err := api.StartServer(addr, deps); err != nil {
		log.Fatalf("API server failed: %v", err)
	}
}
