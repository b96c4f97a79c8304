package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alecgard/toolshelf/internal/api"
	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/config"
	"github.com/alecgard/toolshelf/internal/db"
	"github.com/alecgard/toolshelf/internal/invite"
	"github.com/alecgard/toolshelf/internal/memstore"
	"github.com/alecgard/toolshelf/internal/metrics"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/ratelimit"
	"github.com/alecgard/toolshelf/internal/shelf"
	"github.com/alecgard/toolshelf/internal/team"
	"github.com/alecgard/toolshelf/internal/telemetry"
	"github.com/alecgard/toolshelf/internal/user"
)

const sweepInterval = time.Minute

var ephemeral bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Toolshelf API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep all data in memory and load the starter catalog")
	rootCmd.AddCommand(serveCmd)
}

// stores is one backend's implementation of every store.
type stores struct {
	users   user.Store
	teams   team.Store
	catalog catalog.Store
	shelf   shelf.Store
	prefs   preference.Store
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.OTel, slog.LevelInfo)
	slog.SetDefault(logger)

	m := metrics.New()

	var (
		st     stores
		pinger api.Pinger
		cacheP api.Pinger
	)
	if ephemeral {
		mem := memstore.New()
		st = stores{mem.Users(), mem.Teams(), mem.Catalog(), mem.Shelf(), mem.Preferences()}
		slog.Warn("running with in-memory storage; data is lost on exit")
	} else {
		d, err := db.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.QueryTimeout)
		if err != nil {
			return err
		}
		defer d.Close()
		slog.Info("connected to database")

		st = stores{
			users:   user.NewPGStore(d),
			teams:   team.NewPGStore(d),
			catalog: catalog.NewPGStore(d),
			shelf:   shelf.NewPGStore(d),
			prefs:   preference.NewPGStore(d),
		}
		pinger = d
		m.RegisterDBPoolCollector(d.Stats)
	}

	catalogOpts := []catalog.Option{catalog.WithCacheObserver(m.ObserveCatalogCache)}
	if cfg.Redis.Addr != "" {
		cache, err := catalog.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			slog.Warn("redis unavailable, catalog cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer cache.Close()
			catalogOpts = append(catalogOpts, catalog.WithCache(cache, cfg.Catalog.CacheTTL))
			cacheP = cache
			slog.Info("catalog cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Catalog.CacheTTL)
		}
	}
	catalogService := catalog.NewService(st.catalog, catalogOpts...)

	if ephemeral {
		tools, err := loadCatalogFile("")
		if err != nil {
			return err
		}
		if _, err := seedCatalog(ctx, catalogService, tools); err != nil {
			return err
		}
	}

	users := user.NewService(st.users, cfg.Auth.SessionTTL)
	directory := user.NewAuthAdapter(st.users)
	resolvers := []auth.Resolver{auth.NewSessionResolver(directory)}
	if cfg.Auth.JWTSecret != "" {
		resolvers = append([]auth.Resolver{auth.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)}, resolvers...)
	} else {
		slog.Warn("auth.jwt_secret not set; only session tokens are accepted")
	}
	resolver := auth.Chain(resolvers...)

	shelfService := shelf.NewService(st.shelf, st.teams, catalogService, preference.NewShelfAdapter(st.prefs))

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Invites > 0 {
		limiter = ratelimit.New(cfg.RateLimit.Invites, cfg.RateLimit.Window)
	}

	router := api.NewRouter(api.RouterDeps{
		Teams:          team.NewService(st.teams),
		Shelf:          shelfService,
		Catalog:        catalogService,
		Preferences:    preference.NewService(st.prefs, st.shelf, st.teams, shelfService.Resolver()),
		Invites:        invite.NewService(resolver, st.teams, directory),
		Users:          users,
		Resolver:       resolver,
		InviteLimiter:  limiter,
		Metrics:        m,
		DB:             pinger,
		Cache:          cacheP,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	go sweep(ctx, limiter, users, m)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "ephemeral", ephemeral)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return tel.Shutdown(shutdownCtx)
}

// sweep periodically drops idle rate-limit buckets and expired sessions
// until ctx is cancelled.
func sweep(ctx context.Context, limiter *ratelimit.Limiter, users *user.Service, m *metrics.Metrics) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if limiter != nil {
			if n := limiter.Sweep(); n > 0 {
				slog.Debug("swept rate limit buckets", "count", n)
			}
		}
		n, err := users.CleanExpiredSessions(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("cleaning expired sessions", "error", err)
			}
			continue
		}
		if n > 0 {
			m.AddSessionsCleaned(n)
			slog.Info("cleaned expired sessions", "count", n)
		}
	}
}
