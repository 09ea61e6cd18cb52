package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/nutrichat/nutrichat-api/internal/database"
	"github.com/nutrichat/nutrichat-api/internal/utility"
)

const (
	AccessTokenDuration = 24 * time.Hour
	tokenIssuer         = "nutrichat"

	// Length in random bytes of a device secret; hex-encoded on the wire.
	deviceSecretBytes = 32
)

// ErrUnknownDevice is returned by stores when a device id is not registered.
var ErrUnknownDevice = errors.New("unknown device")

// Store persists device registrations. *DBStore and *MemoryStore satisfy it.
type Store interface {
	Create(ctx context.Context, deviceID uuid.UUID, secretHash string) error
	SecretHash(ctx context.Context, deviceID uuid.UUID) (string, error)
}

// DBStore keeps registrations in Postgres.
type DBStore struct {
	q *database.Queries
}

func NewDBStore(q *database.Queries) *DBStore {
	return &DBStore{q: q}
}

func (s *DBStore) Create(ctx context.Context, deviceID uuid.UUID, secretHash string) error {
	return s.q.CreateDevice(ctx, database.CreateDeviceParams{DeviceID: deviceID, SecretHash: secretHash})
}

func (s *DBStore) SecretHash(ctx context.Context, deviceID uuid.UUID) (string, error) {
	d, err := s.q.GetDevice(ctx, deviceID)
	if errors.Is(err, database.ErrDeviceNotFound) {
		return "", ErrUnknownDevice
	}
	if err != nil {
		return "", err
	}
	return d.SecretHash, nil
}

// MemoryStore keeps registrations in memory for local mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[uuid.UUID]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[uuid.UUID]string)}
}

func (s *MemoryStore) Create(_ context.Context, deviceID uuid.UUID, secretHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devices[deviceID]; exists {
		return fmt.Errorf("device %s already registered", deviceID)
	}
	s.devices[deviceID] = secretHash
	return nil
}

func (s *MemoryStore) SecretHash(_ context.Context, deviceID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.devices[deviceID]
	if !ok {
		return "", ErrUnknownDevice
	}
	return hash, nil
}

type JwtCustomClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

type RegisterRequest struct {
	// DeviceID is optional; one is minted when the client does not bring its
	// own.
	DeviceID string `json:"device_id" form:"device_id"`
}

type RegisterResponse struct {
	DeviceID string `json:"device_id"`
	// DeviceSecret is shown exactly once; only its bcrypt hash is stored.
	DeviceSecret string `json:"device_secret"`
}

type TokenRequest struct {
	DeviceID     string `json:"device_id" form:"device_id"`
	DeviceSecret string `json:"device_secret" form:"device_secret"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Handler owns the device pairing endpoints: register once, then trade the
// device secret for short-lived bearer tokens.
type Handler struct {
	store  Store
	secret []byte
}

func NewHandler(store Store, sessionSecret string) *Handler {
	return &Handler{store: store, secret: []byte(sessionSecret)}
}

// RegisterDeviceHandler mints a device identity. The secret travels back to
// the caller once and is never recoverable afterwards.
func (h *Handler) RegisterDeviceHandler(c echo.Context) error {
	if err := utility.CheckIPRateLimit(utility.GetRealIP(c)); err != nil {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	}

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	deviceID := uuid.New()
	if req.DeviceID != "" {
		parsed, err := uuid.Parse(req.DeviceID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "device_id must be a UUID"})
		}
		deviceID = parsed
	}

	secret, err := utility.GenerateSecureToken(deviceSecretBytes)
	if err != nil {
		log.Error().Err(err).Msg("generating device secret")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Could not register device"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("hashing device secret")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Could not register device"})
	}

	if err := h.store.Create(c.Request().Context(), deviceID, string(hash)); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("device registration rejected")
		return c.JSON(http.StatusConflict, map[string]string{"error": "Device already registered"})
	}

	log.Info().Str("device_id", deviceID.String()).Msg("device registered")
	return c.JSON(http.StatusCreated, RegisterResponse{
		DeviceID:     deviceID.String(),
		DeviceSecret: secret,
	})
}

// IssueTokenHandler trades a device secret for a bearer token. Unknown ids
// and bad secrets get the same answer so the endpoint does not enumerate
// registrations.
func (h *Handler) IssueTokenHandler(c echo.Context) error {
	if err := utility.CheckIPRateLimit(utility.GetRealIP(c)); err != nil {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	}

	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		utility.AddRandomDelay()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid device credentials"})
	}

	hash, err := h.store.SecretHash(c.Request().Context(), deviceID)
	if err != nil {
		if !errors.Is(err, ErrUnknownDevice) {
			log.Error().Err(err).Msg("reading device secret")
		}
		utility.AddRandomDelay()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid device credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.DeviceSecret)); err != nil {
		utility.AddRandomDelay()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid device credentials"})
	}

	token, err := h.generateAccessToken(deviceID)
	if err != nil {
		log.Error().Err(err).Msg("signing access token")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Could not issue token"})
	}

	return c.JSON(http.StatusOK, AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(AccessTokenDuration.Seconds()),
	})
}

func (h *Handler) generateAccessToken(deviceID uuid.UUID) (string, error) {
	claims := &JwtCustomClaims{
		DeviceID: deviceID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(AccessTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

// JwtAuthMiddleware guards the chat routes. Clients are devices, not
// browsers: the token comes from the Authorization header only and failures
// answer in JSON rather than redirecting anywhere.
func (h *Handler) JwtAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing bearer token"})
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenString, &JwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return h.secret, nil
		})
		if err != nil || !token.Valid {
			log.Debug().Err(err).Msg("token validation failed")
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
		}

		claims, ok := token.Claims.(*JwtCustomClaims)
		if !ok || claims.DeviceID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		}
		if _, err := uuid.Parse(claims.DeviceID); err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid device ID"})
		}

		c.Set("device_id", claims.DeviceID)
		return next(c)
	}
}
