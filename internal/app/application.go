// Package app is the composition root: it wires storage, the compute
// backend, the orchestrator/ingestion services, and the cache namespaces
// into one lifecycle-managed Application that cmd/appserver starts.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3e-labs/rlstudio/internal/app/compute"
	core "github.com/r3e-labs/rlstudio/internal/app/core/service"
	"github.com/r3e-labs/rlstudio/internal/app/services/cache"
	"github.com/r3e-labs/rlstudio/internal/app/services/ingestion"
	"github.com/r3e-labs/rlstudio/internal/app/services/orchestrator"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
	"github.com/r3e-labs/rlstudio/internal/app/system"
	"github.com/r3e-labs/rlstudio/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil Client defaults to
// the in-memory store; a nil Blobs defaults to an on-disk blob store under
// RuntimeConfig.BlobStoreDir.
type Stores struct {
	Client storage.Client
	Blobs  storage.BlobStore
}

func (s *Stores) applyDefaults(mem *storage.Memory, blobs storage.BlobStore) {
	if s.Client == nil {
		s.Client = mem
	}
	if s.Blobs == nil {
		s.Blobs = blobs
	}
}

// RuntimeConfig captures environment-dependent wiring that New needs but
// that is not itself a Store.
type RuntimeConfig struct {
	ComputeBackendURL    string
	RedisURL             string
	BlobStoreDir         string
	CompiledEnvCacheSize int
	AssetCacheSize       int
}

// Option customizes application construction.
type Option func(*builderConfig)

type builderConfig struct {
	httpClient *http.Client
	runtime    RuntimeConfig
	backend    compute.Backend
}

// WithRuntimeConfig overrides the runtime configuration used when wiring
// services.
func WithRuntimeConfig(cfg RuntimeConfig) Option {
	return func(b *builderConfig) { b.runtime = cfg }
}

// WithHTTPClient injects a shared HTTP client. A nil client is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(b *builderConfig) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// WithComputeBackend overrides the compute.Backend implementation, bypassing
// RuntimeConfig.ComputeBackendURL's default HTTPBackend. Primarily used by tests.
func WithComputeBackend(backend compute.Backend) Option {
	return func(b *builderConfig) { b.backend = backend }
}

// Application ties the training-run services together and manages their
// lifecycle through a single system.Manager.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Orchestrator *orchestrator.Service
	Ingestion    *ingestion.Service
	Storage      storage.Client
	Blobs        storage.BlobStore
	Backend      compute.Backend
	Cache        *cache.Namespaces

	descriptors []core.Descriptor
}

// New builds a fully wired application from the provided stores.
func New(stores Stores, log *logger.Logger, opts ...Option) (*Application, error) {
	cfg := builderConfig{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	blobDir := cfg.runtime.BlobStoreDir
	if blobDir == "" {
		blobDir = "data/blobs"
	}
	diskBlobs, err := storage.NewDiskBlobStore(blobDir)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	mem := storage.NewMemory()
	stores.applyDefaults(mem, diskBlobs)
	stores.Client = storage.WithRetry(stores.Client, core.StorageRetryPolicy)

	manager := system.NewManager()

	backend := cfg.backend
	if backend == nil {
		url := cfg.runtime.ComputeBackendURL
		if url == "" {
			url = "http://localhost:9000"
		}
		backend = compute.NewHTTPBackend(url)
	}

	var redisClient *redis.Client
	if cfg.runtime.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.runtime.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
	}

	orchestratorService := orchestrator.NewService(stores.Client, backend, log)
	ingestionService := ingestion.NewService(redisClient, stores.Client, log)

	for _, svc := range []system.Service{orchestratorService, ingestionService} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	compiledEnvSize := cfg.runtime.CompiledEnvCacheSize
	assetSize := cfg.runtime.AssetCacheSize
	namespaces := cache.NewNamespaces(compiledEnvSize, assetSize)

	return &Application{
		manager:      manager,
		log:          log,
		Orchestrator: orchestratorService,
		Ingestion:    ingestionService,
		Storage:      stores.Client,
		Blobs:        stores.Blobs,
		Backend:      backend,
		Cache:        namespaces,
		descriptors:  manager.Descriptors(),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	if err := a.manager.Register(service); err != nil {
		return err
	}
	a.descriptors = a.manager.Descriptors()
	return nil
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and releases cache resources.
func (a *Application) Stop(ctx context.Context) error {
	a.Cache.Close()
	return a.manager.Stop(ctx)
}

// Descriptors returns advertised service descriptors for introspection.
func (a *Application) Descriptors() []core.Descriptor {
	out := make([]core.Descriptor, len(a.descriptors))
	copy(out, a.descriptors)
	return out
}

// Logger exposes the application's logger for callers that compose
// additional services around it (e.g. the HTTP server).
func (a *Application) Logger() *logger.Logger { return a.log }
