// Package http provides the HTTP server for the chat relay.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wenjia28/nanochat/internal/chat"
	"github.com/wenjia28/nanochat/internal/config"
	"github.com/wenjia28/nanochat/internal/policy"
	"github.com/wenjia28/nanochat/internal/transport/http/proxy"
	v1 "github.com/wenjia28/nanochat/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. It serves both the
// chat API used by clients and the completion proxy that fronts the
// upstream model backend.
func NewServer(controller *chat.Controller, engine *policy.Engine, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	chatHandler := v1.NewHandler(controller, engine, cfg)
	proxyHandler := proxy.NewHandler(cfg, engine)

	// Register Routes
	chatHandler.RegisterRoutes(e)
	proxyHandler.RegisterRoutes(e)

	return e
}
