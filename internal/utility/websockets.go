package utility

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Simple Hub to hold active connections: Map[DeviceID] -> Connection
var (
	Clients   = make(map[string]*websocket.Conn)
	ClientsMu sync.Mutex // Mutex to prevent race conditions
	Upgrader  = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Allow CORS for development
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

// RegisterClient records a device's connection. A device holds one stream at
// a time; an older connection is closed and replaced.
func RegisterClient(deviceID string, conn *websocket.Conn) {
	ClientsMu.Lock()
	defer ClientsMu.Unlock()
	if old, ok := Clients[deviceID]; ok {
		old.Close()
	}
	Clients[deviceID] = conn
	log.Info().Str("device_id", deviceID).Msg("WebSocket Client Connected")
}

// UnregisterClient removes the device's connection, unless a newer one has
// already replaced it.
func UnregisterClient(deviceID string, conn *websocket.Conn) {
	ClientsMu.Lock()
	defer ClientsMu.Unlock()
	if current, ok := Clients[deviceID]; ok && current == conn {
		delete(Clients, deviceID)
		log.Info().Str("device_id", deviceID).Msg("WebSocket Client Disconnected")
	}
}

// ClientCount reports how many devices hold an open stream.
func ClientCount() int {
	ClientsMu.Lock()
	defer ClientsMu.Unlock()
	return len(Clients)
}
