/*
Package server implements the application's network transport layer.
It initializes the HTTP server, configures timeouts, and wires the chat
session registry, auth and storage services into the route handlers.
*/
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nutrichat/nutrichat-api/internal/auth"
	"github.com/nutrichat/nutrichat-api/internal/chat"
	"github.com/nutrichat/nutrichat-api/internal/config"
	"github.com/nutrichat/nutrichat-api/internal/connectivity"
	"github.com/nutrichat/nutrichat-api/internal/database"
)

// StartTime is when the process came up; /system/status reports uptime
// against it.
var StartTime = time.Now()

// Server defines the configuration and dependencies for the HTTP service.
type Server struct {
	// cfg carries the environment-derived settings.
	cfg *config.Config

	// db provides access to the database service and connection pool.
	// It is nil when the memory backend is selected.
	db database.Service

	// manager owns the per-device chat sessions.
	manager *chat.Manager

	// monitor is the connectivity probe the sessions subscribe to.
	monitor *connectivity.Monitor

	// auth owns device registration, token issue and the JWT middleware.
	auth *auth.Handler
}

// NewServer wires the dependencies into a configured *http.Server with
// production-ready network timeouts.
func NewServer(cfg *config.Config, db database.Service, manager *chat.Manager, monitor *connectivity.Monitor, authHandler *auth.Handler) *http.Server {
	newApp := &Server{
		cfg:     cfg,
		db:      db,
		manager: manager,
		monitor: monitor,
		auth:    authHandler,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newApp.RegisterRoutes(), // Injected from routes.go
		IdleTimeout:  time.Minute,             // Time to wait for the next request on keep-alive connections.
		ReadTimeout:  10 * time.Second,        // Maximum duration for reading the entire request.
		WriteTimeout: 30 * time.Second,        // Maximum duration before timing out writes of the response.
	}

	return server
}
