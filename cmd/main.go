package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rps_arena/internal/adapters"
	"rps_arena/internal/bootstrap"
	authDelivery "rps_arena/internal/delivery/auth"
	gameDelivery "rps_arena/internal/delivery/game"
	profileDelivery "rps_arena/internal/delivery/profile"
	ownMiddleware "rps_arena/internal/middleware"
	repo "rps_arena/internal/repository"
	"rps_arena/internal/scheduler"
	"rps_arena/internal/store"
	authUC "rps_arena/internal/usecase/auth"
	gameUC "rps_arena/internal/usecase/game"
	profileUC "rps_arena/internal/usecase/profile"
	statsUC "rps_arena/internal/usecase/stats"
)

const (
	healthService   = "rps_arena"
	shutdownTimeout = 10 * time.Second
)

type mainDeliveryHandler struct {
	auth    *authDelivery.AuthHandler
	game    *gameDelivery.GameHandler
	profile *profileDelivery.ProfileHandler
}

type dataBaseAdapters struct {
	redisAdapter *adapters.AdapterRedis
	mongoAdapter *adapters.AdapterMongo
}

type usecases struct {
	auth     *authUC.AuthUsecaseHandler
	game     *gameUC.GameUseCase
	profile  *profileUC.ProfileUseCase
	stats    *statsUC.StatsUseCase
	registry *gameUC.Registry
}

func main() {
	logger := NewLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Error("Failed to setup configuration", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	databaseAdapters := initDatabaseAdapters(ctx, logger, cfg)
	defer databaseAdapters.Close(context.Background())

	clock := clockwork.NewRealClock()
	st := initStore(logger, cfg, databaseAdapters)
	uc := initUsecases(ctx, logger, cfg, clock, st, databaseAdapters)
	defer uc.registry.CloseAll()

	stopWatching, err := uc.stats.Watch(ctx)
	if err != nil {
		logger.Fatalf("Failed to subscribe stats to games: %v", err)
	}
	defer stopWatching()

	healthServer := health.NewServer()
	sched, err := initScheduler(ctx, logger, cfg, clock, st, uc, healthServer)
	if err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warnf("scheduler shutdown: %v", err)
		}
	}()

	r := chi.NewRouter()
	handlers := initializeDeliveryHandlers(logger, cfg, clock, uc)
	handlers.Router(r, cfg.IsLocalCors)

	if err := serve(ctx, logger, cfg, r, healthServer); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
	}
	logger.Info("Server stopped")
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

func (h *mainDeliveryHandler) Router(r *chi.Mux, isLocalCors bool) {
	if isLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", h.auth.Register)
	r.Post("/login", h.auth.Login)
	r.Delete("/logout", h.auth.Logout)

	r.Get("/me", h.profile.HandleMe)
	r.Patch("/profile", h.profile.HandleUpdateProfile)
	r.Get("/profiles/{username}", h.profile.HandleGetProfile)
	r.Get("/profiles/{username}/stats", h.profile.HandleStats)
	r.Get("/profiles/{username}/games", h.profile.HandleGames)
	r.Get("/profiles/{username}/report.pdf", h.profile.HandleReport)
	r.Get("/leaderboard", h.profile.HandleLeaderboard)

	r.Post("/match/find", h.game.HandleFindMatch)
	r.Post("/match/challenge", h.game.HandleChallenge)
	r.Post("/match/accept", h.game.HandleAccept)
	r.Post("/match/cancel", h.game.HandleCancel)
	r.Get("/challenges", h.game.HandleChallenges)
	r.Get("/game", h.game.HandleGetGame)
	r.Post("/game/choice", h.game.HandleChoice)
	r.Post("/game/leave", h.game.HandleLeave)
	r.Get("/ws", h.game.HandleWS)
}

// initDatabaseAdapters connects only what the configuration asks for: redis
// backs sessions whenever REDIS_URL is set, mongo only the mongo store.
func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config) *dataBaseAdapters {
	a := &dataBaseAdapters{}

	if cfg.RedisUrl != "" {
		a.redisAdapter = adapters.NewAdapterRedis(cfg, log)
		if err := a.redisAdapter.Init(ctx); err != nil {
			log.Fatal("Не удалось инициализировать Redis", zap.Error(err))
		}
	}

	if cfg.StoreBackend == bootstrap.StoreMongo {
		a.mongoAdapter = adapters.NewAdapterMongo(cfg, log)
		if err := a.mongoAdapter.Init(ctx); err != nil {
			log.Fatal("Не удалось инициализировать MongoDB", zap.Error(err))
		}
	}

	log.Info("Адаптеры баз данных инициализированы")
	return a
}

func (a *dataBaseAdapters) Close(ctx context.Context) {
	if a.mongoAdapter != nil {
		_ = a.mongoAdapter.Close(ctx)
	}
	if a.redisAdapter != nil {
		_ = a.redisAdapter.Close(ctx)
	}
}

func initStore(log *zap.SugaredLogger, cfg *bootstrap.Config, a *dataBaseAdapters) store.Store {
	switch cfg.StoreBackend {
	case bootstrap.StoreRedis:
		log.Infof("using redis store with prefix %q", cfg.RedisPrefix)
		return repo.NewRedisStore(a.redisAdapter.GetClient(), cfg.RedisPrefix, log)
	case bootstrap.StoreMongo:
		log.Infof("using mongo store %s", cfg.MongoDatabase)
		return repo.NewMongoStore(a.mongoAdapter.Database, log)
	default:
		log.Info("using in-memory store, state is lost on restart")
		return store.NewMemoryStore()
	}
}

func initUsecases(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config, clock clockwork.Clock, st store.Store, a *dataBaseAdapters) *usecases {
	accounts := repo.NewAccountRepository(st, log)
	profiles := repo.NewProfileRepository(st, clock, log)
	games := repo.NewGameRepository(st, clock, log)

	var sessions authUC.SessionStorage
	if a.redisAdapter != nil {
		sessions = repo.NewSessionRedisStorage(a.redisAdapter.GetClient(), cfg.RedisPrefix, cfg.SessionTTL, log)
	} else {
		sessions = repo.NewSessionMapStorage(cfg.SessionTTL)
	}

	rules := gameUC.DefaultRules()
	rules.StopOnMajority = cfg.StopOnMajority
	rules.WaitingTimeout = cfg.WaitingTimeout
	rules.ChoiceTimeout = cfg.ChoiceTimeout
	rules.MatchQueryLimit = cfg.MatchQueryLimit

	weights := statsUC.ScoreWeights{
		RoundWin:  cfg.ScoreRoundWin,
		RoundLoss: cfg.ScoreRoundLoss,
		RoundDraw: cfg.ScoreRoundDraw,
		GameWin:   cfg.ScoreGameWin,
		GameLoss:  cfg.ScoreGameLoss,
	}

	gameUsecase := gameUC.NewGameUseCase(games, profiles, rules, clock, log)
	return &usecases{
		auth:     authUC.NewUserUsecaseHandler(accounts, profiles, sessions, clock, log),
		game:     gameUsecase,
		profile:  profileUC.NewProfileUseCase(profiles, log),
		stats:    statsUC.NewStatsUseCase(games, profiles, weights, log),
		registry: gameUC.NewRegistry(ctx, gameUsecase),
	}
}

func initScheduler(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config, clock clockwork.Clock, st store.Store, uc *usecases, hs *health.Server) (*scheduler.Scheduler, error) {
	sched, err := scheduler.NewScheduler(cfg, clock, log)
	if err != nil {
		return nil, err
	}
	if err := sched.StatsCheck(ctx, uc.stats); err != nil {
		return nil, err
	}
	if err := sched.OrphanSweep(ctx, uc.game); err != nil {
		return nil, err
	}
	if err := sched.HealthProbe(ctx, st, hs, healthService); err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

func initializeDeliveryHandlers(log *zap.SugaredLogger, cfg *bootstrap.Config, clock clockwork.Clock, uc *usecases) *mainDeliveryHandler {
	authDeliveryHandler := authDelivery.NewAuthHandler(uc.auth, cfg, log)
	authDeliveryHandler.OnLogout(func(ctx context.Context, userID string) {
		uc.registry.Remove(userID)
		if err := uc.profile.SetPresence(ctx, userID, false); err != nil {
			log.Warnf("logout presence of %s: %v", userID, err)
		}
	})

	return &mainDeliveryHandler{
		auth:    authDeliveryHandler,
		game:    gameDelivery.NewGameHandler(log, uc.game, uc.registry, uc.profile, authDeliveryHandler),
		profile: profileDelivery.NewProfileHandler(cfg, log, uc.profile, uc.stats, authDeliveryHandler, clock),
	}
}

// serve runs the HTTP API and the gRPC health endpoint until ctx is done or
// either of them fails.
func serve(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config, r http.Handler, hs *health.Server) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Server is running on port %s", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GrpcPort)
		if err != nil {
			return err
		}
		log.Infof("gRPC health is running on port %s", cfg.GrpcPort)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})
	return g.Wait()
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
}
