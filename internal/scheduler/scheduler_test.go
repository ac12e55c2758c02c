package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rps_arena/internal/bootstrap"
)

type countingChecker struct{ calls atomic.Int32 }

func (c *countingChecker) Check(context.Context) ([]string, error) {
	c.calls.Add(1)
	return nil, nil
}

type countingSweeper struct {
	calls     atomic.Int32
	olderThan atomic.Int64
}

func (c *countingSweeper) SweepOrphans(_ context.Context, olderThan time.Duration) (int, error) {
	c.calls.Add(1)
	c.olderThan.Store(int64(olderThan))
	return 1, nil
}

type flakyPinger struct{ down atomic.Bool }

func (p *flakyPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func newTestScheduler(t *testing.T, cfg *bootstrap.Config) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, clockwork.NewRealClock(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestScheduler_Jobs(t *testing.T) {
	ctx := context.Background()
	cfg := &bootstrap.Config{
		StatsCheckInterval: 10 * time.Millisecond,
		OrphanSweepAfter:   15 * time.Millisecond,
	}
	s := newTestScheduler(t, cfg)

	checker := &countingChecker{}
	sweeper := &countingSweeper{}
	require.NoError(t, s.StatsCheck(ctx, checker))
	require.NoError(t, s.OrphanSweep(ctx, sweeper))
	s.Start()

	require.Eventually(t, func() bool {
		return checker.calls.Load() >= 2 && sweeper.calls.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(15*time.Millisecond), sweeper.olderThan.Load())
}

func TestScheduler_SweepOffByDefault(t *testing.T) {
	s := newTestScheduler(t, &bootstrap.Config{})
	sweeper := &countingSweeper{}
	require.NoError(t, s.OrphanSweep(context.Background(), sweeper))
	require.NoError(t, s.StatsCheck(context.Background(), &countingChecker{}))
	s.Start()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sweeper.calls.Load())
	assert.Empty(t, s.sched.Jobs())
}

func TestScheduler_HealthProbe(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t, &bootstrap.Config{HealthProbeInterval: 10 * time.Millisecond})
	hs := health.NewServer()
	pinger := &flakyPinger{}

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(ctx, &healthpb.HealthCheckRequest{Service: "rps_arena"})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	require.NoError(t, s.HealthProbe(ctx, pinger, hs, "rps_arena"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(), "first probe runs immediately")

	s.Start()
	pinger.down.Store(true)
	require.Eventually(t, func() bool {
		return status() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 5*time.Millisecond)
}
