package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Platform"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.Use(LoggerMiddleware)

	// Device pairing routes
	e.POST("/auth/register", s.auth.RegisterDeviceHandler)
	e.POST("/auth/token", s.auth.IssueTokenHandler)

	e.GET("/health", s.healthHandler)

	// Protected routes
	protected := e.Group("")
	protected.Use(s.auth.JwtAuthMiddleware)

	// Chat session routes
	protected.POST("/chat/messages", s.submitMessageHandler)
	protected.GET("/chat/messages", s.listMessagesHandler)
	protected.GET("/chat/status", s.chatStatusHandler)
	protected.POST("/chat/consent", s.grantConsentHandler)
	protected.POST("/chat/consent/cancel", s.cancelConsentHandler)

	// Websocket for the mobile client's live message stream
	protected.GET("/chat/ws", s.chatSocketHandler)

	// Operational visibility
	protected.GET("/system/status", s.systemStatusHandler)

	return e
}

func (s *Server) healthHandler(c echo.Context) error {
	if s.db == nil {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "up",
			"storage": "memory",
		})
	}
	return c.JSON(http.StatusOK, s.db.Health())
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Response().Header().Set("X-Request-ID", requestID)

		logger := log.With().Str("request_id", requestID).Logger()

		c.Set("logger", &logger)

		return next(c)
	}
}
