package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rps_arena/internal/bootstrap"
)

const jobTimeout = 30 * time.Second

type StatsChecker interface {
	Check(ctx context.Context) ([]string, error)
}

type OrphanSweeper interface {
	SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler runs the server-side housekeeping jobs. Game timers are not
// scheduled here; they belong to each player's client.
type Scheduler struct {
	sched gocron.Scheduler
	cfg   *bootstrap.Config
	log   *zap.SugaredLogger
}

func NewScheduler(cfg *bootstrap.Config, clock clockwork.Clock, log *zap.SugaredLogger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(cronLogger{log: log}),
		gocron.WithStopTimeout(jobTimeout),
	)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		sched: sched,
		cfg:   cfg,
		log:   log,
	}, nil
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			fn(jobCtx)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

// StatsCheck periodically recounts stats and repairs the running tally.
func (s *Scheduler) StatsCheck(ctx context.Context, checker StatsChecker) error {
	if s.cfg.StatsCheckInterval <= 0 {
		return nil
	}
	return s.every(ctx, "stats-check", s.cfg.StatsCheckInterval, func(ctx context.Context) {
		if _, err := checker.Check(ctx); err != nil {
			s.log.Errorf("stats check failed: %v", err)
		}
	})
}

// OrphanSweep deletes waiting games left behind by creators that went away.
// It is off unless ORPHAN_SWEEP_AFTER is set.
func (s *Scheduler) OrphanSweep(ctx context.Context, sweeper OrphanSweeper) error {
	after := s.cfg.OrphanSweepAfter
	if after <= 0 {
		return nil
	}
	return s.every(ctx, "orphan-sweep", after, func(ctx context.Context) {
		n, err := sweeper.SweepOrphans(ctx, after)
		if err != nil {
			s.log.Errorf("orphan sweep failed: %v", err)
			return
		}
		if n > 0 {
			s.log.Infof("swept %d orphaned waiting games", n)
		}
	})
}

// HealthProbe pings the store and reports the result through the gRPC
// health service under service and the server-wide "" entry.
func (s *Scheduler) HealthProbe(ctx context.Context, pinger Pinger, hs *health.Server, service string) error {
	probe := func(ctx context.Context) {
		status := healthpb.HealthCheckResponse_SERVING
		if err := pinger.Ping(ctx); err != nil {
			s.log.Warnf("store ping failed: %v", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(service, status)
		hs.SetServingStatus("", status)
	}
	probe(ctx)
	if s.cfg.HealthProbeInterval <= 0 {
		return nil
	}
	return s.every(ctx, "health-probe", s.cfg.HealthProbeInterval, probe)
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Debug(msg string, args ...any) { l.log.Debugw(msg, args...) }
func (l cronLogger) Error(msg string, args ...any) { l.log.Errorw(msg, args...) }
func (l cronLogger) Info(msg string, args ...any)  { l.log.Infow(msg, args...) }
func (l cronLogger) Warn(msg string, args ...any)  { l.log.Warnw(msg, args...) }
