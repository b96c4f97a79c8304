package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/invite"
	"github.com/alecgard/toolshelf/internal/metrics"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/ratelimit"
	"github.com/alecgard/toolshelf/internal/shelf"
	"github.com/alecgard/toolshelf/internal/team"
	"github.com/alecgard/toolshelf/internal/telemetry"
	"github.com/alecgard/toolshelf/internal/user"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Teams       *team.Service
	Shelf       *shelf.Service
	Catalog     *catalog.Service
	Preferences *preference.Service
	Invites     *invite.Service
	Users       *user.Service
	Resolver    auth.Resolver

	// InviteLimiter bounds invite calls per credential. Nil disables it.
	InviteLimiter *ratelimit.Limiter
	// Metrics is optional; without it /metrics is not mounted.
	Metrics *metrics.Metrics
	// DB is pinged by /health when set.
	DB Pinger
	// Cache is the catalog read cache, pinged by /health when set. The
	// cache fails open, so an unreachable cache does not fail the check.
	Cache Pinger

	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(telemetry.HTTPMiddleware(routePattern))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(slogRequestLogger)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))

	ew := errorWriter{metrics: deps.Metrics}

	// Handlers.
	authH := newAuthHandler(deps.Users, ew)
	teams := newTeamsHandler(deps.Teams, ew)
	memberships := newMembershipHandler(deps.Teams, ew)
	shelves := newShelfHandler(deps.Shelf, ew)
	cat := newCatalogHandler(deps.Shelf, deps.Catalog, ew)
	prefs := newPreferencesHandler(deps.Preferences, ew)
	invites := newInviteHandler(deps.Invites, ew)

	// Health check.
	r.Get("/health", healthHandler(deps.DB, deps.Cache))

	// Well-known manifest.
	r.Get("/.well-known/toolshelf.json", WellKnownHandler)

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	authFailed := func() {}
	if deps.Metrics != nil {
		authFailed = func() { deps.Metrics.IncAuthFailure("bearer") }
	}
	requireIdentity := auth.Middleware(deps.Resolver, authFailed)

	// Invite admission resolves the caller itself.
	r.Group(func(ir chi.Router) {
		if deps.InviteLimiter != nil {
			ir.Use(ratelimit.Middleware(deps.InviteLimiter, inviteRateKey, invites.rejectFunction))
		}
		ir.Post("/functions/v1/invite-member", invites.InviteFunction)
	})
	r.Group(func(ir chi.Router) {
		if deps.InviteLimiter != nil {
			ir.Use(ratelimit.Middleware(deps.InviteLimiter, inviteRateKey, invites.rejectAPI))
		}
		ir.With(requireUUIDParams("teamID")).Post("/api/v1/teams/{teamID}/invites", invites.Invite)
	})

	// Public auth routes.
	if deps.Users != nil {
		r.Post("/api/v1/auth/signup", authH.Signup)
		r.Post("/api/v1/auth/login", authH.Login)
	}

	// RPC surface used by the shelf page.
	r.With(requireIdentity).Post("/rpc/touch_tool", prefs.TouchRPC)

	// Authenticated routes.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(requireIdentity)

		if deps.Users != nil {
			ar.Get("/auth/me", authH.Me)
			ar.Post("/auth/logout", authH.Logout)
		}

		// Teams and membership management.
		ar.Get("/teams", teams.ListTeams)
		ar.Post("/teams", teams.CreateTeam)
		ar.Route("/teams/{teamID}", func(tr chi.Router) {
			tr.Use(requireUUIDParams("teamID"))
			tr.Get("/", teams.GetTeam)
			tr.Get("/members", teams.ListMembers)

			// Shelf.
			tr.Get("/shelf", shelves.ListShelf)
			tr.Post("/shelf/catalog", shelves.AddCatalogEntry)
			tr.Post("/shelf/custom", shelves.AddCustomEntry)
		})
		ar.With(requireUUIDParams("membershipID")).Put("/memberships/{membershipID}", memberships.ChangeRole)
		ar.With(requireUUIDParams("membershipID")).Delete("/memberships/{membershipID}", memberships.RemoveMember)

		// Catalog.
		ar.Get("/catalog", cat.Browse)
		ar.Get("/catalog/tools", cat.ListTools)
		ar.With(requireUUIDParams("toolID")).Get("/catalog/tools/{toolID}", cat.GetTool)

		// Preferences.
		ar.With(requireUUIDParams("entryID")).Post("/shelf/{entryID}/pin", prefs.TogglePin)
		ar.With(requireUUIDParams("entryID")).Post("/shelf/{entryID}/touch", prefs.Touch)
		ar.Get("/me/recent", prefs.RecentTools)
		ar.Get("/me/pinned", prefs.PinnedTools)
	})

	return r
}

// healthHandler reports liveness and, when configured, whether the
// database and the catalog cache answer. Only the database decides the
// status code.
func healthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok", "database": "none"}
		if cache != nil {
			body["cache"] = "connected"
			if err := cache.Ping(r.Context()); err != nil {
				body["cache"] = "unreachable"
			}
		}
		if db == nil {
			writeJSON(w, http.StatusOK, body)
			return
		}
		if err := db.Ping(r.Context()); err != nil {
			body["status"], body["database"] = "degraded", "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "connected"
		writeJSON(w, http.StatusOK, body)
	}
}

// requireUUIDParams rejects requests whose named URL parameters are not
// UUIDs before they reach a store.
func requireUUIDParams(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, name := range names {
				if v := chi.URLParam(r, name); !validID(v) {
					writeError(w, http.StatusBadRequest, "validation_error", name+" must be a UUID")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
