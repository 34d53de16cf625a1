package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/internal/app"
	"github.com/rishisan99/OmniAgent/internal/config"
	"github.com/rishisan99/OmniAgent/kb"
	"github.com/rishisan99/OmniAgent/observer"
	"github.com/rishisan99/OmniAgent/provider/openaicompat"
	"github.com/rishisan99/OmniAgent/provider/resolve"
	"github.com/rishisan99/OmniAgent/store/postgres"
	"github.com/rishisan99/OmniAgent/store/sqlite"
	"github.com/rishisan99/OmniAgent/tools/docs"
	"github.com/rishisan99/OmniAgent/tools/knowledge"
	"github.com/rishisan99/OmniAgent/tools/media"
	"github.com/rishisan99/OmniAgent/tools/web"
)

const openAIBaseURL = "https://api.openai.com/v1"

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg := config.Load(os.Getenv("OMNIAGENT_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 2. Observability (optional)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, cfg.PricingOverrides())
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer shutdown(context.Background())
	}

	// 3. Providers
	resolver := resolve.Resolver(cfg.APIKey)
	if inst != nil {
		base := resolver
		resolver = func(provider, model string) (omniagent.Provider, error) {
			p, err := base(provider, model)
			if err != nil {
				return nil, err
			}
			return observer.WrapProvider(p, model, inst), nil
		}
	}

	embedder, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.APIKey(cfg.Embedding.Provider),
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		log.Fatalf("embedding provider: %v", err)
	}
	if inst != nil {
		embedder = observer.WrapEmbedding(embedder, cfg.Embedding.Model, inst)
	}

	// 4. Stores: the KB index lives in Postgres when configured, else in
	// the local SQLite file. The per-session index always uses SQLite.
	sqlStore := sqlite.New(cfg.Database.Path)
	defer sqlStore.Close()
	if err := sqlStore.Init(ctx); err != nil {
		log.Fatalf("store init: %v", err)
	}

	var kbStore omniagent.VectorStore = sqlStore
	if cfg.Database.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("postgres pool: %v", err)
		}
		defer pool.Close()
		pg := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := pg.Init(ctx); err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		kbStore = pg
	}

	sessionIndex := sqlite.NewSessionIndex(sqlStore.DB())
	if err := sessionIndex.Init(ctx); err != nil {
		log.Fatalf("session index init: %v", err)
	}

	// 5. Knowledge base
	kbEngine := kb.New(cfg.KB.RootPath, kbStore, embedder,
		kb.WithChunking(cfg.KB.ChunkSize, cfg.KB.ChunkOverlap),
		kb.WithCacheTTL(cfg.KB.CacheTTLDuration()),
		kb.WithLogger(logger))
	if stamp, err := kbEngine.Ensure(ctx); err != nil {
		logger.Error("kb index build failed", "err", err)
	} else {
		logger.Info("kb index ready", "stamp", stamp)
	}

	// 6. Lanes
	assetRoot := filepath.Join(cfg.Server.DataDir, "uploads")
	assets := media.NewAssets(assetRoot)

	openAIKey := cfg.APIKey("openai")
	imageClient := openaicompat.NewImageClient(openAIKey, cfg.Media.ImageModel, openAIBaseURL)
	speechClient := openaicompat.NewSpeechClient(openAIKey, cfg.Media.TTSModel, openAIBaseURL)

	visionResolver := resolver
	if cfg.Media.VisionModel != "" {
		visionResolver = func(provider, _ string) (omniagent.Provider, error) {
			return resolver(provider, cfg.Media.VisionModel)
		}
	}

	sessionLane := knowledge.NewSessionLane(sessionIndex, embedder, assetRoot,
		knowledge.WithSessionLogger(logger))

	webOpts := []web.Option{web.WithLogger(logger)}
	if cfg.Web.UserAgent != "" {
		webOpts = append(webOpts, web.WithUserAgent(cfg.Web.UserAgent))
	}

	lanes := []omniagent.Lane{
		web.New(cfg.Web.TavilyAPIKey, webOpts...),
		sessionLane,
		knowledge.NewKBLane(kbEngine, knowledge.WithKBLogger(logger)),
		media.NewImageLane(imageClient, assets, media.WithImageLogger(logger)),
		media.NewTTSLane(speechClient, assets, media.WithTTSLogger(logger)),
		media.NewVisionLane(visionResolver, assets, media.WithVisionLogger(logger)),
		docs.New(resolver, assets, docs.WithLogger(logger)),
	}
	registry := omniagent.NewLaneRegistry()
	for _, l := range lanes {
		if inst != nil {
			registry.Register(observer.WrapLane(l, inst))
			continue
		}
		registry.Register(l)
	}

	// 7. Engine
	engine := omniagent.NewEngine(resolver, registry,
		omniagent.WithEngineConfig(cfg.EngineConfig()),
		omniagent.WithCandidates(resolve.Candidates),
		omniagent.WithLogger(logger))

	// 8. HTTP app
	sessions := omniagent.NewSessionStore(
		omniagent.WithSessionTTL(cfg.SessionTTLDuration()))
	server := app.New(cfg, app.Deps{
		Engine:   engine,
		Sessions: sessions,
		Assets:   assets,
		Index:    sessionIndex,
		Forget:   sessionLane.ForgetSession,
		Logger:   logger,
	})

	log.Fatal(server.RunWithSignal())
}
