// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/markdave123-py/spacechat/internal/config"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/core/chat_engine"
	db "github.com/markdave123-py/spacechat/internal/core/database"
	"github.com/markdave123-py/spacechat/internal/core/ingestion_engine"
	"github.com/markdave123-py/spacechat/internal/core/llm"
	objectclient "github.com/markdave123-py/spacechat/internal/core/object-client"
	"github.com/markdave123-py/spacechat/internal/core/openai"
	"github.com/markdave123-py/spacechat/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	DocProcessor *ingestion_engine.DocumentIngestor
	Server       *Server

	closers []func() error
}

// NewApp builds every collaborator from cfg and starts the ingestion workers
// on ctx. Cancelling ctx stops the workers; Close releases the clients.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}

	if cfg.DatabaseURL != "" {
		dbClient, err := db.NewDatabaseClient(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		a.DBClient = dbClient
		log.Println("Database initialized and ready.")
	} else {
		a.DBClient = db.NewMemoryClient()
		log.Println("Using in-memory database.")
	}
	a.closers = append(a.closers, a.DBClient.Close)

	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		objClient, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.ObjectClient = objClient
		log.Println("Object client initialized and ready.")
	} else {
		a.ObjectClient = objectclient.NewMemoryClient()
		log.Println("WARN: AWS credentials not set, uploaded files are kept in memory only")
	}

	var remote *openai.Client
	if cfg.RemoteIndexEnabled() {
		var err error
		remote, err = openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			VisionModel: cfg.VisionModel,
			RPS:         cfg.UpstreamRPS,
			Timeout:     cfg.ExtractTimeout,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the retrieval provider, %w", err)
		}
		log.Println("Remote knowledge index enabled.")
	} else {
		log.Println("WARN: OPENAI_API_KEY not set, answering from stored chunks")
	}

	var gemini *llm.GeminiLLM
	if cfg.AIAPIKey != "" {
		var err error
		gemini, err = llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
		}
		a.closers = append(a.closers, gemini.Close)
	}

	// Chunk embeddings only serve the local fallback search.
	var embedder core.EmbeddingProvider
	if remote == nil && cfg.AIAPIKey != "" {
		geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, geminiEmbedder.Close)
		embedder = geminiEmbedder
	}

	var vision core.VisionProvider
	switch {
	case gemini != nil:
		vision = gemini
	case remote != nil:
		vision = remote
	default:
		log.Println("WARN: no vision provider configured, image and PDF previews are disabled")
	}

	useReadability := false
	documentExtractor := ingestion_engine.NewDocconvExtractor(useReadability)
	scraper := ingestion_engine.NewScraper(nil, cfg.ScrapeMinChars)
	extractor := ingestion_engine.NewExtractor(a.ObjectClient, cfg.BucketName, vision, documentExtractor, scraper, cfg.ExtractTimeout)

	var indexManager *ingestion_engine.IndexManager
	responderCfg := chat_engine.ResponderConfig{Embedder: embedder, Timeout: cfg.ChatTimeout}
	if remote != nil {
		indexManager = ingestion_engine.NewIndexManager(a.DBClient, remote)
		responderCfg.Retrieval = remote
	}
	if gemini != nil {
		responderCfg.Generator = gemini
	}

	ingCfg := &ingestion_engine.IngestConfig{
		ChunkSize: cfg.ChunkSize,
		QueueSize: cfg.IngestQueueSize,
	}
	a.DocProcessor = ingestion_engine.NewDocumentIngestor(a.DBClient, extractor, indexManager, embedder, ingCfg)
	a.DocProcessor.Start(ctx, cfg.IngestWorkers)
	go func() {
		if err := a.DocProcessor.Resume(ctx); err != nil {
			log.Printf("App: resuming pending documents: %v", err)
		}
	}()

	a.Server = NewServer(cfg, Handlers{
		Spaces:    services.NewSpaceService(a.DBClient),
		Documents: services.NewDocumentService(a.DBClient, a.ObjectClient, cfg.BucketName, a.DocProcessor, indexManager),
		Links:     services.NewLinkService(a.DBClient),
		Validator: chat_engine.NewLinkValidator(a.DBClient),
		Responder: chat_engine.NewResponder(a.DBClient, responderCfg),
	})

	return a, nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("App: close failed: %v", err)
		}
	}
	a.closers = nil
}
