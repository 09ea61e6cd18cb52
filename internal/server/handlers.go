package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/nutrichat/nutrichat-api/internal/chat"
	"github.com/nutrichat/nutrichat-api/internal/conversation"
	"github.com/nutrichat/nutrichat-api/internal/utility"
)

type submitMessageRequest struct {
	Text string `json:"text" form:"text"`
}

type submitMessageResponse struct {
	Status     string `json:"status"`
	Disclosure string `json:"disclosure,omitempty"`
}

// session resolves the caller's chat session from the device id the JWT
// middleware placed on the context.
func (s *Server) session(c echo.Context) (*chat.Session, error) {
	deviceID, err := utility.GetDeviceIDFromContext(c)
	if err != nil {
		return nil, err
	}
	return s.manager.Session(c.Request().Context(), deviceID), nil
}

func (s *Server) submitMessageHandler(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req submitMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	res, err := session.SubmitText(req.Text)
	if err != nil {
		return submitErrorResponse(c, err)
	}
	return submitResultResponse(c, res)
}

func (s *Server) grantConsentHandler(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	res, err := session.GrantConsent(c.Request().Context())
	if err != nil {
		return submitErrorResponse(c, err)
	}
	return submitResultResponse(c, res)
}

func (s *Server) cancelConsentHandler(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	if err := session.CancelPending(); err != nil {
		return submitErrorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMessagesHandler(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	msgs, err := session.Messages()
	if err != nil {
		return submitErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) chatStatusHandler(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	status, err := session.Status()
	if err != nil {
		return submitErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// submitResultResponse maps a session outcome to its HTTP shape: accepted
// sends 202, a consent ask sends 409 with the disclosure, offline sends 503.
func submitResultResponse(c echo.Context, res chat.SubmitResult) error {
	switch res.Status {
	case chat.SubmitConsentRequired:
		return c.JSON(http.StatusConflict, submitMessageResponse{
			Status:     string(res.Status),
			Disclosure: res.Disclosure,
		})
	case chat.SubmitOffline:
		return c.JSON(http.StatusServiceUnavailable, submitMessageResponse{Status: string(res.Status)})
	default:
		return c.JSON(http.StatusAccepted, submitMessageResponse{Status: string(res.Status)})
	}
}

func submitErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, conversation.ErrBlankInput):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message text is required"})
	case errors.Is(err, chat.ErrRequestInFlight):
		return c.JSON(http.StatusConflict, map[string]string{"error": "A recommendation request is already in progress"})
	case errors.Is(err, chat.ErrSessionClosed):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Chat session closed, please retry"})
	default:
		log.Error().Err(err).Msg("chat operation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func (s *Server) chatSocketHandler(c echo.Context) error {
	// 1. Resolve the device's session before touching the connection
	deviceID, err := utility.GetDeviceIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	session := s.manager.Session(c.Request().Context(), deviceID)

	// 2. Upgrade HTTP to WebSocket
	ws, err := utility.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// 3. Register Client
	utility.RegisterClient(deviceID, ws)
	defer utility.UnregisterClient(deviceID, ws)

	// 4. Subscribe to the session's event stream
	events, cancel := session.Subscribe()
	defer cancel()

	// We don't expect messages FROM the client, but we must read to notice
	// when the socket closes.
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 5. Pump session events onto the socket
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Session closed; tell the client why before hanging up.
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return nil
			}
			if err := ws.WriteJSON(ev); err != nil {
				return nil
			}
		case <-readerGone:
			return nil
		}
	}
}

func (s *Server) systemStatusHandler(c echo.Context) error {
	// Gather system metrics; each probe degrades to a zero reading on error.
	v, _ := mem.VirtualMemory()
	cpuPercent, _ := cpu.Percent(0, false)
	du, _ := disk.Usage("/")
	osUptime, _ := host.Uptime()

	cpuLoad := 0.0
	if len(cpuPercent) > 0 {
		cpuLoad = cpuPercent[0]
	}
	ramUsage := 0.0
	if v != nil {
		ramUsage = v.UsedPercent
	}
	diskUsage := 0.0
	if du != nil {
		diskUsage = du.UsedPercent
	}

	storage := map[string]string{"status": "up", "storage": "memory"}
	if s.db != nil {
		storage = s.db.Health()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"server_health": map[string]interface{}{
			"cpu_load":    fmt.Sprintf("%.1f%%", cpuLoad),
			"ram_usage":   fmt.Sprintf("%.1f%%", ramUsage),
			"disk_usage":  fmt.Sprintf("%.1f%%", diskUsage),
			"uptime_s":    int64(time.Since(StartTime).Seconds()),
			"os_uptime_s": osUptime,
		},
		"chat": map[string]interface{}{
			"live_sessions": s.manager.Len(),
			"ws_clients":    utility.ClientCount(),
			"connectivity":  s.monitor.Status().String(),
		},
		"storage": storage,
	})
}
