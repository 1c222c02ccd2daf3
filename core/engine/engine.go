package engine

import (
	"fmt"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/connid/ldap"
	"idm-reconciler/core/connid/memory"
	"idm-reconciler/core/database"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/match"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reconcile"
	"idm-reconciler/core/storage"
	"idm-reconciler/core/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options are the settings the core is built from.
type Options struct {
	Database     database.Config
	Provisioning provisioning.Config
	Connector    connid.Config
}

// Core bundles the collaborators shared by the features and commands.
type Core struct {
	Store      *store.Store
	Connectors *connid.Manager
	Mapping    *mapping.Engine
	Inbound    *match.Inbound
	Outbound   *match.Outbound
	Status     *reconcile.StatusEngine
	Logic      provisioning.LogicTable
	Actions    *provisioning.Actions
	Pusher     *provisioning.Pusher
	Puller     *provisioning.Puller
	Streamer   *provisioning.Streamer

	// Objects is nil when no object storage is configured.
	Objects *storage.Objects

	Provisioning provisioning.Config
	Connector    connid.Config
	Logger       *zap.Logger
}

// NewRegistry returns a registry holding the built-in bundles.
func NewRegistry() *connid.Registry {
	r := connid.NewRegistry()
	r.Register(memory.Info, memory.Factory)
	r.Register(ldap.Info, ldap.Factory)
	return r
}

// New wires the core over db.
func New(db *gorm.DB, opts Options, objects *storage.Objects, logger *zap.Logger) (*Core, error) {
	var storeOpts []store.Option
	if opts.Database.Driver != database.DriverSQLite {
		level, err := database.Isolation(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("invalid database isolation: %w", err)
		}
		storeOpts = append(storeOpts, store.WithIsolation(level))
	}
	st := store.New(db, storeOpts...)

	pc := opts.Provisioning
	connectors := connid.NewManager(NewRegistry(), logger)
	engine := mapping.NewEngine(st, mapping.NewEvaluator(), mapping.NewVirAttrCache(pc.VirAttrCacheSize, pc.VirAttrCacheTTL()))
	inbound := match.NewInbound(st, logger)
	outbound := match.NewOutbound(engine, logger)
	logic := provisioning.NewLogicTable(st)
	actions := provisioning.NewActions()

	pusher := provisioning.NewPusher(st, engine, outbound, logic, actions, logger)
	puller := provisioning.NewPuller(st, engine, inbound, logic, actions, logger)

	return &Core{
		Store:        st,
		Connectors:   connectors,
		Mapping:      engine,
		Inbound:      inbound,
		Outbound:     outbound,
		Status:       reconcile.NewStatusEngine(st, connectors, engine, inbound, outbound, pc.ExclusiveReconQuery, logger),
		Logic:        logic,
		Actions:      actions,
		Pusher:       pusher,
		Puller:       puller,
		Streamer:     provisioning.NewStreamer(pusher, puller, pc.StreamWorkers, logger),
		Objects:      objects,
		Provisioning: pc,
		Connector:    opts.Connector,
		Logger:       logger,
	}, nil
}
