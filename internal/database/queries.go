package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx a query needs, so Queries works against a pool,
// a single connection or a transaction alike.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// ErrDeviceNotFound is returned when a device id has no registration row.
var ErrDeviceNotFound = errors.New("device not found")

type Device struct {
	DeviceID   uuid.UUID
	SecretHash string
	CreatedAt  time.Time
}

const createDevice = `
INSERT INTO devices (device_id, secret_hash)
VALUES ($1, $2)`

type CreateDeviceParams struct {
	DeviceID   uuid.UUID
	SecretHash string
}

func (q *Queries) CreateDevice(ctx context.Context, arg CreateDeviceParams) error {
	if _, err := q.db.Exec(ctx, createDevice, arg.DeviceID, arg.SecretHash); err != nil {
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

const getDevice = `
SELECT device_id, secret_hash, created_at
FROM devices
WHERE device_id = $1`

func (q *Queries) GetDevice(ctx context.Context, deviceID uuid.UUID) (Device, error) {
	var d Device
	err := q.db.QueryRow(ctx, getDevice, deviceID).Scan(&d.DeviceID, &d.SecretHash, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("getting device: %w", err)
	}
	return d, nil
}

const setConsentAcknowledged = `
INSERT INTO consent_flags (device_id)
VALUES ($1)
ON CONFLICT (device_id) DO NOTHING`

func (q *Queries) SetConsentAcknowledged(ctx context.Context, deviceID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, setConsentAcknowledged, deviceID); err != nil {
		return fmt.Errorf("setting consent flag: %w", err)
	}
	return nil
}

const getConsentAcknowledged = `
SELECT EXISTS (
    SELECT 1 FROM consent_flags WHERE device_id = $1
)`

func (q *Queries) GetConsentAcknowledged(ctx context.Context, deviceID uuid.UUID) (bool, error) {
	var acknowledged bool
	if err := q.db.QueryRow(ctx, getConsentAcknowledged, deviceID).Scan(&acknowledged); err != nil {
		return false, fmt.Errorf("reading consent flag: %w", err)
	}
	return acknowledged, nil
}

// ConsentStore adapts Queries to the consent gate's store contract, which
// speaks device ids as strings.
type ConsentStore struct {
	q *Queries
}

func NewConsentStore(q *Queries) *ConsentStore {
	return &ConsentStore{q: q}
}

func (s *ConsentStore) Acknowledged(ctx context.Context, deviceID string) (bool, error) {
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return false, fmt.Errorf("invalid device id: %w", err)
	}
	return s.q.GetConsentAcknowledged(ctx, id)
}

func (s *ConsentStore) SetAcknowledged(ctx context.Context, deviceID string) error {
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return fmt.Errorf("invalid device id: %w", err)
	}
	return s.q.SetConsentAcknowledged(ctx, id)
}
