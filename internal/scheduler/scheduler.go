// Package scheduler runs refresh cycles on a fixed interval in serve mode
// and prunes old cycle history.
package scheduler

import (
	"context"
	"time"

	"github.com/wolfsonlabs/commercelens/internal/clock"
	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/refresh"
	"github.com/wolfsonlabs/commercelens/internal/warehouse"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reloader is notified after a scheduled cycle publishes, so the serving
// layer can swap to the newly published snapshot and cycle ID.
type Reloader interface {
	ReloadSnapshot(ctx context.Context) error
}

type Scheduler struct {
	cfg    config.ScheduleConfig
	log    *zap.Logger
	svc    *refresh.Service
	repo   warehouse.Repository
	clock  clock.Clock
	reload Reloader

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Param struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Svc    *refresh.Service
	Repo   warehouse.Repository
	Clock  clock.Clock
	Reload Reloader `optional:"true"`
}

func New(p Param) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    p.Cfg.Schedule,
		log:    p.Log.Named("scheduler"),
		svc:    p.Svc,
		repo:   p.Repo,
		clock:  p.Clock,
		reload: p.Reload,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if s.cfg.RefreshInterval <= 0 {
				s.log.Info("background refresh disabled")
				close(s.done)
				return nil
			}
			go s.loop()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Cancelling aborts an in-flight cycle, not just the ticker wait.
			s.cancel()
			select {
			case <-s.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func (s *Scheduler) loop() {
	defer close(s.done)
	s.log.Info("background refresh enabled", zap.Duration("interval", s.cfg.RefreshInterval))

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.ctx)
		}
	}
}

// Tick runs one scheduled pass: a refresh cycle, history pruning, then a
// snapshot reload on the serving layer so measures answer from the new
// cycle. A failed cycle is logged and the loop keeps going; the next tick
// retries.
func (s *Scheduler) Tick(ctx context.Context) {
	if _, err := s.svc.Run(ctx); err != nil {
		s.log.Error("scheduled refresh failed", zap.Error(err))
		return
	}
	s.pruneHistory(ctx)
	if s.reload != nil {
		if err := s.reload.ReloadSnapshot(ctx); err != nil {
			s.log.Error("snapshot reload after scheduled refresh failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) pruneHistory(ctx context.Context) {
	days := s.cfg.CycleRetentionDays
	if days <= 0 {
		return
	}
	cutoff := s.clock.Now(ctx).AddDate(0, 0, -days)
	pruned, err := s.repo.PruneCycles(ctx, cutoff)
	if err != nil {
		s.log.Error("cycle history pruning failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		s.log.Info("pruned cycle history", zap.Int64("cycles", pruned), zap.Time("cutoff", cutoff))
	}
}
