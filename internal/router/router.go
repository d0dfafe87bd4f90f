// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Vr3n/crown-vitality-research/internal/handler"
	"github.com/Vr3n/crown-vitality-research/internal/metrics"
	"github.com/Vr3n/crown-vitality-research/internal/middleware"
	"github.com/Vr3n/crown-vitality-research/internal/session"
)

// Deps is everything New needs. Cache and RateLimit may be nil.
type Deps struct {
	Auth      *handler.AuthHandler
	Notes     *handler.NotesHandler
	Gate      session.Gate
	Cache     *middleware.ResponseCache
	RateLimit echo.MiddlewareFunc
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	DB        handler.Pinger
	Log       zerolog.Logger
}

// New builds the echo server with all routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	if d.Metrics != nil {
		e.Use(middleware.Metrics(d.Metrics))
	}

	RegisterRoutes(e, d.DB, d.Gatherer)

	v1 := e.Group("/v1", middleware.Session(d.Gate))
	if d.RateLimit != nil {
		v1.Use(d.RateLimit)
	}
	RegisterAuth(v1, d.Auth)
	RegisterNotes(v1, d.Notes, d.Cache)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, g prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers the token endpoints under /v1/auth and /v1/me.
func RegisterAuth(v1 *echo.Group, a *handler.AuthHandler) {
	g := v1.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	v1.GET("/me", a.Me, middleware.RequireSession)
}

// RegisterNotes registers the note, taxonomy and preview endpoints. Reads
// go through the per-user response cache.
func RegisterNotes(v1 *echo.Group, n *handler.NotesHandler, cache *middleware.ResponseCache) {
	var cached []echo.MiddlewareFunc
	if cache != nil {
		cached = append(cached, cache.Middleware())
	}

	v1.GET("/notes", n.List, cached...)
	v1.GET("/notes/:ref", n.Get, cached...)
	v1.POST("/notes", n.Create)
	v1.PUT("/notes/:id", n.Update)
	v1.DELETE("/notes/:id", n.Delete)

	v1.GET("/tags", n.Tags, cached...)
	v1.GET("/categories", n.Categories, cached...)

	v1.POST("/markdown/preview", n.Preview)
}
