// Package leadsync provides the lead ingestion and branch distribution module.
// This file wires the store, the external clients and the pipeline stages.
package leadsync

import (
	"leadflow_backend/internal/dialer"
	"leadflow_backend/internal/leadsync/allocate"
	"leadflow_backend/internal/leadsync/dispatch"
	"leadflow_backend/internal/leadsync/ingest"
	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/internal/leadsync/repository"
	"leadflow_backend/internal/website"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/lock"
	"leadflow_backend/platform/logger"
)

// Config is the configuration the module reads.
type Config interface {
	config.SyncConfig
	config.HTTPClientConfig
}

// Module bundles the lead sync pipeline.
type Module struct {
	Store        repository.LeadStore
	Ingestor     *ingest.Ingestor
	Allocator    *allocate.Allocator
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *Orchestrator
}

// NewModule wires the pipeline against the real website and dialer clients.
func NewModule(store repository.LeadStore, locker lock.Locker, cfg Config, log *logger.Logger) *Module {
	return NewModuleWithClients(store, website.New(cfg, log), dialer.New(cfg, log), locker, cfg, log)
}

// NewModuleWithClients wires the pipeline against the given external clients.
func NewModuleWithClients(store repository.LeadStore, fetcher ports.WebsiteFetcher, pusher ports.DialerPusher, locker lock.Locker, cfg config.SyncConfig, log *logger.Logger) *Module {
	ingestor := ingest.New(store, fetcher, locker, cfg, log)
	allocator := allocate.New(store, log)
	dispatcher := dispatch.New(store, pusher, log)

	return &Module{
		Store:        store,
		Ingestor:     ingestor,
		Allocator:    allocator,
		Dispatcher:   dispatcher,
		Orchestrator: NewOrchestrator(store, ingestor, allocator, dispatcher, locker, cfg, log),
	}
}
