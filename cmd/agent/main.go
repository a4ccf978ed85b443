package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yieldex/onchain/pkg/cache"
	"github.com/yieldex/onchain/pkg/config"
	"github.com/yieldex/onchain/pkg/engine"
	"github.com/yieldex/onchain/pkg/feed"
	"github.com/yieldex/onchain/pkg/protocol"
	"github.com/yieldex/onchain/pkg/types"
	"github.com/yieldex/onchain/pkg/version"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		recFile     = flag.String("recommendation", "", "execute a single recommendation from a JSON file and exit")
		stateDir    = flag.String("state-dir", ".yieldex-state", "directory for execution state files")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersionString())
		return
	}

	// Optional .env for local runs; production supplies real env vars.
	if err := godotenv.Load(); err == nil {
		log.Println("✅ Loaded environment from .env")
	}

	log.Printf("🚀 %s starting", version.GetFullVersionString())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	c := buildCache(cfg)
	defer c.Close()

	registry := protocol.NewRegistry(cfg, c)
	defer registry.Close()

	store, err := engine.NewStore(*stateDir)
	if err != nil {
		log.Fatalf("❌ Failed to open state directory: %v", err)
	}

	eng := engine.New(cfg, registry, nil, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *recFile != "" {
		if err := runOnce(ctx, eng, *recFile); err != nil {
			log.Fatalf("❌ %v", err)
		}
		return
	}

	if err := runFeed(ctx, cfg, eng); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// buildCache picks Redis when configured and degrades to the in-process
// cache otherwise.
func buildCache(cfg *config.Config) cache.Cache {
	if cfg.RedisAddress == "" {
		return cache.NewMemoryCache()
	}
	c, err := cache.NewRedisCache(&cache.RedisConfig{
		Address:   cfg.RedisAddress,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: "yieldex:",
	})
	if err != nil {
		log.Printf("⚠️ Redis unavailable, using in-memory cache: %v", err)
		return cache.NewMemoryCache()
	}
	return c
}

// runOnce executes one recommendation read from disk and prints the result.
func runOnce(ctx context.Context, eng *engine.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read recommendation file: %w", err)
	}
	var rec types.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to parse recommendation: %w", err)
	}

	result, err := eng.Execute(ctx, rec)
	if err != nil {
		return fmt.Errorf("recommendation rejected: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if result.FinalState != types.StateDone {
		return fmt.Errorf("execution halted at step %d: %s", result.FailedStep, result.FailureReason)
	}
	log.Printf("✅ Recommendation %s completed", result.RecommendationID)
	return nil
}

// runFeed streams recommendations from the analytics feed until the
// process is signalled.
func runFeed(ctx context.Context, cfg *config.Config, eng *engine.Engine) error {
	if cfg.FeedWSURL == "" {
		return fmt.Errorf("FEED_WS_URL is required for feed mode (or use -recommendation for one-shot runs)")
	}

	auth, err := feed.NewAuthenticator(cfg.PrivateKey)
	if err != nil {
		return err
	}

	client := feed.NewClient(feed.Config{
		URL:  cfg.FeedWSURL,
		Auth: auth,
		OnError: func(err error) {
			log.Printf("⚠️ Feed: %v", err)
		},
	})
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	log.Printf("📡 Listening for recommendations as %s", auth.Address())

	for {
		select {
		case <-ctx.Done():
			log.Println("👋 Shutting down")
			return nil
		case rec, ok := <-client.Recommendations():
			if !ok {
				return fmt.Errorf("feed connection closed")
			}
			handleRecommendation(ctx, eng, client, rec)
		}
	}
}

func handleRecommendation(ctx context.Context, eng *engine.Engine, client *feed.Client, rec types.Recommendation) {
	log.Printf("📥 Recommendation %s: %s -> %s (%.2f %s)",
		rec.ID, rec.SourcePool, rec.DestPool, rec.Amount, rec.Asset)

	result, err := eng.Execute(ctx, rec)
	if err != nil {
		log.Printf("⚠️ Recommendation %s rejected: %v", rec.ID, err)
		return
	}

	switch result.FinalState {
	case types.StateDone:
		log.Printf("✅ Recommendation %s completed", result.RecommendationID)
	default:
		log.Printf("⚠️ Recommendation %s halted at step %d: %s",
			result.RecommendationID, result.FailedStep, result.FailureReason)
	}

	if err := client.PublishResult(result); err != nil {
		log.Printf("⚠️ Failed to report result for %s: %v", result.RecommendationID, err)
	}
}
