// Package server exposes the measure evaluator and the published derived
// tables over HTTP for on-demand consumers of the star schema.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/measure"
	"github.com/wolfsonlabs/commercelens/internal/refresh"
	"github.com/wolfsonlabs/commercelens/internal/store"
	"github.com/wolfsonlabs/commercelens/internal/warehouse"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	cfg        config.Config
	log        *zap.Logger
	repo       warehouse.Repository
	refreshSvc *refresh.Service
	cache      *Cache
	registry   *prometheus.Registry

	mu        sync.RWMutex
	snapshot  *store.Store
	evaluator *measure.Evaluator
	cycleID   int64

	httpRequests *prometheus.CounterVec
}

type Param struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Repo       warehouse.Repository
	RefreshSvc *refresh.Service
	Cache      *Cache               `optional:"true"`
	Registry   *prometheus.Registry `optional:"true"`
}

func New(p Param) *Server {
	s := &Server{
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		repo:       p.Repo,
		refreshSvc: p.RefreshSvc,
		cache:      p.Cache,
		registry:   p.Registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commercelens_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	if p.Registry != nil {
		p.Registry.MustRegister(s.httpRequests)
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestMetrics())

	r.GET("/healthz", s.Healthz)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/measures/:name/evaluate", s.EvaluateMeasure)
		v1.POST("/measures/:name/series", s.EvaluateMeasureSeries)
		v1.POST("/refresh", s.TriggerRefresh)
		v1.GET("/rfm/targets", s.ListTargets)
		v1.GET("/rules", s.ListRules)
		v1.GET("/quality/missing", s.ListColumnProfiles)
		v1.GET("/quality/outliers", s.ListOutlierProfiles)
		v1.GET("/audit/orders", s.ListAuditOrders)
	}
	return r
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.httpRequests.WithLabelValues(c.FullPath(), http.StatusText(c.Writer.Status())).Inc()
	}
}

func (s *Server) Healthz(c *gin.Context) {
	s.mu.RLock()
	loaded := s.snapshot != nil
	s.mu.RUnlock()
	respondData(c, gin.H{"status": "ok", "snapshot_loaded": loaded})
}

// ReloadSnapshot rebuilds the in-memory store and evaluator from the current
// warehouse tables. Called at startup and after each published refresh.
func (s *Server) ReloadSnapshot(ctx context.Context) error {
	orders, lines, dims, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	snap, err := store.Load(orders, lines, dims)
	if err != nil {
		return err
	}

	var cycleID int64
	if cycle, err := s.repo.LatestCycle(ctx); err == nil && cycle != nil {
		cycleID = int64(cycle.ID)
	}

	s.mu.Lock()
	s.snapshot = snap
	s.evaluator = measure.New(snap)
	s.cycleID = cycleID
	s.mu.Unlock()

	s.log.Info("snapshot reloaded", zap.Int("orders", len(orders)), zap.Int64("cycle_id", cycleID))
	return nil
}

func (s *Server) currentEvaluator() (*measure.Evaluator, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.evaluator == nil {
		return nil, 0, errors.New("snapshot not loaded")
	}
	return s.evaluator, s.cycleID, nil
}

var Module = fx.Module("server",
	fx.Provide(New, NewCache),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.ReloadSnapshot(ctx); err != nil {
				log.Warn("initial snapshot load failed; serving until refresh succeeds", zap.Error(err))
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", s.cfg.HTTP.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
