package chat

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/nutrichat/nutrichat-api/internal/consent"
)

// Manager hands out one Session per device and caps how many are live at
// once. The least recently used session is closed on eviction; chat history
// is in-memory only and does not survive that.
type Manager struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]

	logger  zerolog.Logger
	store   consent.Store
	fetcher Fetcher
	conn    ConnectivitySource
}

func NewManager(logger zerolog.Logger, store consent.Store, fetcher Fetcher, conn ConnectivitySource, size int) (*Manager, error) {
	m := &Manager{
		logger:  logger,
		store:   store,
		fetcher: fetcher,
		conn:    conn,
	}
	cache, err := lru.NewWithEvict(size, func(deviceID string, s *Session) {
		s.Close()
		logger.Info().Str("device_id", deviceID).Msg("chat session evicted")
	})
	if err != nil {
		return nil, err
	}
	m.sessions = cache
	return m, nil
}

// Session returns the device's live session, creating it on first use. The
// consent flag is read from the store at creation; a read failure degrades to
// unacknowledged rather than blocking the chat.
func (m *Manager) Session(ctx context.Context, deviceID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions.Get(deviceID); ok {
		return s
	}

	gate, err := consent.NewGate(ctx, m.store, deviceID)
	if err != nil {
		m.logger.Warn().Err(err).Str("device_id", deviceID).Msg("consent flag unavailable, starting unacknowledged")
	}
	s := NewSession(m.logger, deviceID, gate, m.fetcher, m.conn)
	m.sessions.Add(deviceID, s)
	m.logger.Info().Str("device_id", deviceID).Msg("chat session started")
	return s
}

// Len reports how many sessions are live.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}

// Close shuts every live session down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Purge()
}
