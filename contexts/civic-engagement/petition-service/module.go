package petitionservice

import (
	"log/slog"
	"time"

	httpadapter "petitionhub/contexts/civic-engagement/petition-service/adapters/http"
	"petitionhub/contexts/civic-engagement/petition-service/adapters/memory"
	"petitionhub/contexts/civic-engagement/petition-service/application/admission"
	"petitionhub/contexts/civic-engagement/petition-service/application/commands"
	"petitionhub/contexts/civic-engagement/petition-service/application/moderation"
	"petitionhub/contexts/civic-engagement/petition-service/application/queries"
	"petitionhub/contexts/civic-engagement/petition-service/application/stats"
	"petitionhub/contexts/civic-engagement/petition-service/application/workers"
	"petitionhub/contexts/civic-engagement/petition-service/domain/entities"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

type Module struct {
	Handler        httpadapter.Handler
	Reconciliation workers.ReconciliationJob
	Store          *memory.Store
	Model          *memory.ScriptedModel
	Sessions       *memory.Sessions
}

type Dependencies struct {
	Petitions      ports.PetitionReader
	UnitOfWork     ports.UnitOfWork
	Maintenance    ports.PetitionMaintenance
	Events         ports.SubmissionEventLog
	Model          ports.ContentClassifier
	ModerationLogs ports.ModerationLogStore
	Regions        ports.RegionResolver
	Warehouse      ports.WarehouseSink
	Sessions       ports.SessionVerifier
	Lock           ports.ReconciliationLock
	Metrics        ports.Metrics
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Sleeper        ports.Sleeper

	BadWords              []string
	Judges                []string
	PetitionPurpose       string
	ReconcileBatchCap     int
	ReconcileGroupDelay   time.Duration
	DisableReconciliation bool
	Logger                *slog.Logger
}

func NewModule(deps Dependencies) Module {
	aggregator := stats.Aggregator{Logger: deps.Logger}
	classifier := moderation.Classifier{
		Model:   deps.Model,
		Logs:    deps.ModerationLogs,
		Sleeper: deps.Sleeper,
		Clock:   deps.Clock,
		IDGen:   deps.IDGen,
		Purpose: deps.PetitionPurpose,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	}
	reconciliation := workers.ReconciliationJob{
		Petitions:  deps.Petitions,
		UnitOfWork: deps.UnitOfWork,
		Classifier: classifier,
		Sleeper:    deps.Sleeper,
		Lock:       deps.Lock,
		Clock:      deps.Clock,
		BatchCap:   deps.ReconcileBatchCap,
		GroupDelay: deps.ReconcileGroupDelay,
		Disabled:   deps.DisableReconciliation,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Petitions: commands.PetitionUseCase{
				Limiter: admission.Limiter{
					Events: deps.Events,
					Clock:  deps.Clock,
					Logger: deps.Logger,
				},
				Petitions:  deps.Petitions,
				UnitOfWork: deps.UnitOfWork,
				Stats:      aggregator,
				Classifier: classifier,
				Regions:    deps.Regions,
				Warehouse:  deps.Warehouse,
				Words:      entities.NewWordFilter(deps.BadWords),
				Judges:     deps.Judges,
				Clock:      deps.Clock,
				IDGen:      deps.IDGen,
				Metrics:    deps.Metrics,
				Logger:     deps.Logger,
			},
			Admin: commands.AdminUseCase{
				UnitOfWork:  deps.UnitOfWork,
				Maintenance: deps.Maintenance,
				Stats:       aggregator,
				Clock:       deps.Clock,
				Logger:      deps.Logger,
			},
			Queries: queries.PetitionQueries{
				Petitions: deps.Petitions,
			},
			Reconciliation: reconciliation,
			Sessions:       deps.Sessions,
			Logger:         deps.Logger,
		},
		Reconciliation: reconciliation,
	}
}

// NewInMemoryModule wires every port to in-process adapters. The scripted
// model approves everything unless replies are queued.
func NewInMemoryModule(regions ports.RegionResolver, logger *slog.Logger) Module {
	store := memory.NewStore()
	model := memory.NewScriptedModel()
	sessions := memory.NewSessions()
	module := NewModule(Dependencies{
		Petitions:      store,
		UnitOfWork:     store,
		Maintenance:    store,
		Events:         store,
		Model:          model,
		ModerationLogs: store,
		Regions:        regions,
		Sessions:       sessions,
		Lock:           store,
		Clock:          store,
		IDGen:          store,
		Sleeper:        store,
		Logger:         logger,
	})
	module.Store = store
	module.Model = model
	module.Sessions = sessions
	return module
}
