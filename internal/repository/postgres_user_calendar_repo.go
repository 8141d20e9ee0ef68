package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/gambit/internal/model"
)

// PostgresUserCalendarRepo はPostgreSQLを使用したカレンダー紐付けリポジトリ。
type PostgresUserCalendarRepo struct {
	db *sql.DB
}

// NewPostgresUserCalendarRepo はPostgresUserCalendarRepoを生成する。
func NewPostgresUserCalendarRepo(db *sql.DB) *PostgresUserCalendarRepo {
	return &PostgresUserCalendarRepo{db: db}
}

// FindByUserID はユーザーのカレンダー紐付けを取得する。見つからない場合はnilを返す。
func (r *PostgresUserCalendarRepo) FindByUserID(ctx context.Context, userID string) (*model.UserCalendar, error) {
	cal := &model.UserCalendar{}
	var lastSynced sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, calendar_id, last_synced_at FROM user_calendars WHERE user_id = $1`,
		userID,
	).Scan(&cal.UserID, &cal.CalendarID, &lastSynced)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user calendar: %w", err)
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		cal.LastSyncedAt = &t
	}
	return cal, nil
}

// Upsert はカレンダーIDを登録または更新する。
// カレンダーIDが変わった場合は最終同期日時をリセットする。
func (r *PostgresUserCalendarRepo) Upsert(ctx context.Context, cal *model.UserCalendar) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_calendars (user_id, calendar_id, last_synced_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET calendar_id = EXCLUDED.calendar_id,
		     last_synced_at = CASE
		         WHEN user_calendars.calendar_id = EXCLUDED.calendar_id THEN user_calendars.last_synced_at
		         ELSE EXCLUDED.last_synced_at
		     END,
		     updated_at = now()`,
		cal.UserID, cal.CalendarID, cal.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user calendar: %w", err)
	}
	return nil
}

// UpdateLastSynced は最終同期日時を更新する。
func (r *PostgresUserCalendarRepo) UpdateLastSynced(ctx context.Context, userID string, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_calendars SET last_synced_at = $2, updated_at = now() WHERE user_id = $1`,
		userID, syncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update last synced: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserCalendarRepository = (*PostgresUserCalendarRepo)(nil)
