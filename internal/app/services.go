package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mcpgateway/internal/aggregator"
	"mcpgateway/internal/api"
	"mcpgateway/internal/collab"
	"mcpgateway/internal/config"
	"mcpgateway/internal/loader"
	"mcpgateway/internal/mcpserver"
	"mcpgateway/internal/metrics"
	"mcpgateway/internal/server"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/logging"
)

// Services holds the wired components of a gateway process.
type Services struct {
	Store   api.Store
	Manager *aggregator.Manager
	Loader  *loader.DirectoryLoader
	Server  *server.Server
}

// InitializeServices creates every component from the validated
// configuration, in dependency order:
//  1. store (sqlite with sealed connection configs, or memory)
//  2. classifier and search index clients, when endpoints are configured
//  3. metrics and the transport adapter
//  4. the aggregator manager
//  5. the server definition loader and the HTTP server
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	gc := cfg.GatewayConfig

	st, err := newStore(ctx, gc)
	if err != nil {
		return nil, err
	}

	var classifier api.Classifier
	if gc.Classification.Endpoint != "" {
		classifier = collab.NewHTTPClassifier(gc.Classification.Endpoint)
		logging.Info("Services", "Skill classification via %s", gc.Classification.Endpoint)
	} else {
		logging.Info("Services", "No classification endpoint configured, tools stay unclassified")
	}

	var index api.SearchIndex = collab.NoopIndex{}
	if gc.Index.Endpoint != "" {
		index = collab.NewHTTPIndex(gc.Index.Endpoint)
		logging.Info("Services", "Search index at %s", gc.Index.Endpoint)
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	manager, err := aggregator.NewManager(aggregator.Options{
		Store:              st,
		Classifier:         classifier,
		Index:              index,
		Adapter:            mcpserver.NewTransportAdapter(mcpserver.WithAllowInsecure(gc.Transports.AllowInsecure)),
		Metrics:            metrics.New(reg),
		MaxServers:         gc.Limits.MaxServers,
		ConnectionTimeout:  gc.Timeouts.Connection,
		RequestTimeout:     gc.Timeouts.Request,
		DrainTimeout:       gc.Timeouts.Drain,
		HealthInterval:     gc.Health.Interval,
		HealthProbeTimeout: gc.Timeouts.HealthProbe,
		HealthConcurrency:  gc.Health.Concurrency,
		AutoReconnect:      gc.Health.AutoReconnectEnabled(),
		Retry: aggregator.RetryPolicy{
			MaxAttempts: gc.Retry.MaxAttempts,
			BaseDelay:   gc.Retry.BaseDelay,
			Multiplier:  gc.Retry.Multiplier,
			MaxDelay:    gc.Retry.MaxDelay,
		},
		ClassificationWorkers:   gc.Classification.Concurrency,
		ClassificationQueueSize: gc.Classification.QueueSize,
		AllowInsecure:           gc.Transports.AllowInsecure,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	return &Services{
		Store:   st,
		Manager: manager,
		Loader:  loader.NewDirectoryLoader(gc.ServersDir, manager, loader.DefaultDebounce),
		Server: server.New(manager, server.Config{
			Addr:     gc.Listen,
			Gatherer: gatherer,
			Version:  cfg.Version,
		}),
	}, nil
}

func newStore(ctx context.Context, gc *config.GatewayConfig) (api.Store, error) {
	switch gc.Storage.Driver {
	case config.StorageDriverSQLite:
		enc, err := store.NewKeyEncryptor(gc.CredentialKey)
		if err != nil {
			return nil, fmt.Errorf("invalid credential key: %w", err)
		}
		st, err := store.NewSQLiteStore(ctx, store.SQLiteConfig{Path: gc.Storage.Path, Encryptor: enc})
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		logging.Info("Services", "Using sqlite store at %s", gc.Storage.Path)
		return st, nil
	case config.StorageDriverMemory:
		logging.Warn("Services", "Using in-memory store, registrations are lost on restart")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", gc.Storage.Driver)
}
