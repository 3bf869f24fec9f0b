package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
)

type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteLedger(db *sql.DB) usecase.Ledger {
	return &SQLiteLedger{db: db, now: time.Now}
}

func (l *SQLiteLedger) Get(ctx context.Context, room string) (domain.RoomInfo, error) {
	query := `SELECT owner, topic, expires_at FROM rooms WHERE key = $1 AND expires_at > $2`

	info := domain.RoomInfo{Key: room}
	var expiresAt int64
	if err := l.db.QueryRowContext(ctx, query, room, l.now().UnixMilli()).Scan(&info.Owner, &info.Topic, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return info, nil
		}
		return domain.RoomInfo{}, fmt.Errorf("error querying room: %w", err)
	}
	info.Expiry = time.UnixMilli(expiresAt)
	return info, nil
}

// Claim inserts the room, or takes over a row whose lease has run out. The
// upsert's WHERE clause makes a live row untouchable, so RowsAffected is the
// claim result.
func (l *SQLiteLedger) Claim(ctx context.Context, room, owner string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO rooms (key, owner, topic, expires_at) VALUES ($1, $2, '', $3)
		ON CONFLICT (key) DO UPDATE SET owner = excluded.owner, topic = '', expires_at = excluded.expires_at
		WHERE rooms.expires_at <= $4
	`
	now := l.now()
	res, err := l.db.ExecContext(ctx, query, room, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("error claiming room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading claim result: %w", err)
	}
	return n == 1, nil
}

func (l *SQLiteLedger) SetTopic(ctx context.Context, room, owner, topic string) (bool, error) {
	query := `UPDATE rooms SET topic = $1 WHERE key = $2 AND owner = $3 AND expires_at > $4`
	res, err := l.db.ExecContext(ctx, query, topic, room, owner, l.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("error updating topic: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading topic result: %w", err)
	}
	return n == 1, nil
}

// Renew extends every live lease in rooms and purges expired rows.
func (l *SQLiteLedger) Renew(ctx context.Context, rooms []string, ttl time.Duration) error {
	now := l.now()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning renew: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE rooms SET expires_at = $1 WHERE key = $2 AND expires_at > $3`)
	if err != nil {
		return fmt.Errorf("error preparing renew: %w", err)
	}
	defer stmt.Close()
	for _, room := range rooms {
		if _, err := stmt.ExecContext(ctx, now.Add(ttl).UnixMilli(), room, now.UnixMilli()); err != nil {
			return fmt.Errorf("error renewing room %s: %w", room, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE expires_at <= $1`, now.UnixMilli()); err != nil {
		return fmt.Errorf("error purging rooms: %w", err)
	}
	return tx.Commit()
}
