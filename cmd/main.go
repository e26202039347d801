// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"geo-fence/internal/api"
	"geo-fence/internal/cache"
	"geo-fence/internal/config"
	"geo-fence/internal/fence"
	"geo-fence/internal/geodb"
	"geo-fence/internal/logger"
	"geo-fence/internal/metrics"
	"geo-fence/internal/middleware"
	"geo-fence/internal/migrate"
	"geo-fence/internal/store"
	"geo-fence/internal/tenant"
	"geo-fence/internal/utils"
	"geo-fence/internal/version"
	"geo-fence/internal/watch"

	"golang.org/x/sync/errgroup"
)

// geoStack 维护地理库查询链：覆盖表（可选）在前，各 MMDB 按配置顺序在后
type geoStack struct {
	mu    sync.Mutex
	paths []string
	db    *sql.DB
	dyn   *geodb.Dynamic
	open  []*geodb.MMDB
}

// rebuild 打开全部地理库并原子替换查询链；旧库延迟关闭，留给进行中的请求
func (g *geoStack) rebuild(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	dbs := make([]*geodb.MMDB, 0, len(g.paths))
	list := make([]geodb.Locator, 0, len(g.paths)+1)
	if g.db != nil {
		ov, err := geodb.LoadOverrides(ctx, g.db)
		if err != nil {
			logger.L().Error("geodb_overrides_error", "err", err)
		} else {
			list = append(list, ov)
		}
	}
	for _, p := range g.paths {
		m, err := geodb.Open(p)
		if err != nil {
			for _, o := range dbs {
				_ = o.Close()
			}
			return err
		}
		dbs = append(dbs, m)
		list = append(list, m)
	}
	g.dyn.Set(geodb.NewChain(list...))
	old := g.open
	g.open = dbs
	if len(old) > 0 {
		time.AfterFunc(30*time.Second, func() {
			for _, o := range old {
				_ = o.Close()
			}
		})
	}
	return nil
}

func main() {
	config.LoadEnvFiles()
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok", "commit", version.Commit)
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	var st *store.Store
	var stats *store.Recorder
	if cfg.PGEnabled {
		var err error
		db, err = utils.OpenPostgres(cfg.PG)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
			os.Exit(1)
		}
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
		stats = store.NewRecorder(st, cfg.StatsQueue, cfg.StatsWorkers)
		defer stats.Close()
		l.Info("db_open_ok", "db", cfg.PG.DB)
	} else {
		l.Info("db_disabled")
	}

	geo := &geoStack{paths: cfg.GeoDBPaths, db: db, dyn: &geodb.Dynamic{}}
	if err := geo.rebuild(ctx); err != nil {
		l.Error("geodb_open_error", "err", err)
		os.Exit(1)
	}

	dir, err := tenant.Load(cfg.TenantTable)
	if err != nil {
		l.Error("tenant_table_error", "err", err)
		os.Exit(1)
	}
	holder := tenant.NewHolder(dir)
	metrics.TenantsLoaded.Set(float64(dir.Len()))

	var verdicts *cache.Verdicts
	var seen *cache.Seen
	if cfg.RedisEnabled {
		rc, err := utils.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			defer rc.Close()
			verdicts = cache.NewVerdicts(rc, cfg.VerdictTTL)
			seen = cache.NewSeen(rc, 24*time.Hour)
			l.Info("redis_ping_ok", "addr", cfg.Redis.Addr())
		}
	} else {
		l.Info("redis_disabled")
	}

	engine := fence.New(holder, geo.dyn, fence.Options{AllowedCountry: cfg.AllowedCountry, Logger: l})

	reloadTenants := func(_ context.Context) error {
		d, err := holder.Reload(cfg.TenantTable)
		if err != nil {
			metrics.ReloadTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.ReloadTotal.WithLabelValues("ok").Inc()
		metrics.TenantsLoaded.Set(float64(d.Len()))
		return nil
	}
	reloadAll := func(ctx context.Context) error {
		if err := reloadTenants(ctx); err != nil {
			return err
		}
		if db != nil {
			return geo.rebuild(ctx)
		}
		return nil
	}

	apiMux := api.BuildRoutes(api.Deps{
		Engine:           engine,
		Holder:           holder,
		Matcher:          geo.dyn,
		Store:            st,
		Stats:            stats,
		Verdicts:         verdicts,
		Seen:             seen,
		AdminToken:       cfg.AdminToken,
		GeohashPrecision: cfg.GeohashPrecision,
		Reload:           reloadAll,
	})
	mux := http.NewServeMux()
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	handler := middleware.Wrap(mux, middleware.Options{
		RateLimitEnabled: cfg.RateLimitEnabled,
		QPS:              cfg.RateLimitQPS,
		Burst:            cfg.RateLimitBurst,
		Guard:            middleware.CallerGuardFromEnv(),
	})
	handler = logger.AccessMiddleware(l)(handler)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("listening", "addr", cfg.Addr, "base", cfg.APIBase, "tenants", dir.Len(), "allowed_country", cfg.AllowedCountry)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown_begin")
		return s.Shutdown(sctx)
	})
	if cfg.ReloadEvery > 0 {
		tenantPoller := watch.NewPoller(cfg.TenantTable)
		geoPoller := watch.NewPoller(cfg.GeoDBPaths...)
		g.Go(func() error {
			return tenantPoller.Run(gctx, cfg.ReloadEvery, func(ctx context.Context, _ []string) {
				_ = reloadTenants(ctx)
			})
		})
		g.Go(func() error {
			return geoPoller.Run(gctx, cfg.ReloadEvery, func(ctx context.Context, _ []string) {
				if err := geo.rebuild(ctx); err != nil {
					l.Error("geodb_reload_error", "err", err)
				} else {
					l.Info("geodb_reload_ok")
				}
			})
		})
	}
	if err := g.Wait(); err != nil {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_done")
}
