package fx

import (
	"league-tracker/internal/config"
	"league-tracker/internal/database"
	"league-tracker/internal/lock"
	"league-tracker/internal/logger"
	"league-tracker/internal/repository"
	"league-tracker/internal/riot"
	"league-tracker/internal/server"
	"league-tracker/internal/service"

	"go.uber.org/fx"
)

func provideLeaser(s *lock.Store) lock.Leaser { return s }

func provideRiotAPI(c *riot.Client) service.RiotAPI { return c }

func provideSyncRunner(p *service.Pipeline) service.SyncRunner { return p }

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewFriendRepository),
	fx.Provide(repository.NewSyncStateRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewParticipantRepository),
	fx.Provide(repository.NewRankSnapshotRepository),
	// locks
	fx.Provide(lock.NewStore),
	fx.Provide(provideLeaser),
	// api client
	fx.Provide(riot.NewGateFromConfig),
	fx.Provide(riot.NewClient),
	fx.Provide(provideRiotAPI),
	// svc
	fx.Provide(service.NewRankService),
	fx.Provide(service.NewPipeline),
	fx.Provide(provideSyncRunner),
	fx.Provide(service.NewTicker),
	fx.Provide(service.NewSynergyService),
	// server
	fx.Provide(server.New),
)
