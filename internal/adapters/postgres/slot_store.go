// Package postgres keeps server-side credential slots in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	apperrors "github.com/peopleops/hrportal/internal/errors"
)

// DefaultSlotTTL bounds how long an idle browser session keeps its credentials.
const DefaultSlotTTL = 12 * time.Hour

// SlotStore implements tokenstore.SlotBackend over the credential_slots table.
type SlotStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ tokenstore.SlotBackend = (*SlotStore)(nil)

// SlotStoreOptions configures a SlotStore.
type SlotStoreOptions struct {
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewSlotStore wraps db. The credential_slots migration must have been applied.
func NewSlotStore(db *sql.DB, opts SlotStoreOptions) *SlotStore {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SlotStore{db: db, ttl: ttl, now: now}
}

const (
	getSlotQuery = `SELECT value FROM credential_slots
		WHERE sid = $1 AND slot = $2 AND expires_at > $3`

	upsertSlotQuery = `INSERT INTO credential_slots (sid, slot, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sid, slot)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`

	deleteSlotQuery = `DELETE FROM credential_slots WHERE sid = $1 AND slot = $2`

	purgeExpiredQuery = `DELETE FROM credential_slots WHERE expires_at <= $1`
)

// GetSlot implements tokenstore.SlotBackend.
func (s *SlotStore) GetSlot(ctx context.Context, sid, slot string) (string, bool, error) {
	if sid == "" {
		return "", false, nil
	}
	var value string
	err := s.db.QueryRowContext(ctx, getSlotQuery, sid, slot, s.now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get credential slot: %w", apperrors.MapDBError(err))
	}
	return value, true, nil
}

// SetSlot implements tokenstore.SlotBackend.
func (s *SlotStore) SetSlot(ctx context.Context, sid, slot, value string) error {
	if sid == "" {
		return apperrors.Validation("session id cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx, upsertSlotQuery, sid, slot, value, s.now().Add(s.ttl)); err != nil {
		return fmt.Errorf("set credential slot: %w", apperrors.MapDBError(err))
	}
	return nil
}

// ClearSlot implements tokenstore.SlotBackend.
func (s *SlotStore) ClearSlot(ctx context.Context, sid, slot string) error {
	if sid == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, deleteSlotQuery, sid, slot); err != nil {
		return fmt.Errorf("clear credential slot: %w", apperrors.MapDBError(err))
	}
	return nil
}

// PurgeExpired deletes every slot whose TTL has passed and returns how many were removed.
func (s *SlotStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeExpiredQuery, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge credential slots: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge credential slots: rows affected: %w", err)
	}
	return n, nil
}
