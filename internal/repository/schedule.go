package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carebell/carebell/internal/database"
	"github.com/carebell/carebell/internal/models"
)

type ScheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// notifyScheduleChange pokes the push channel so a running coordinator
// picks up the write without waiting for its tick. Failure is ignored
// because the write already committed and the tick covers the gap.
func notifyScheduleChange(ctx context.Context, db *database.DB, elderID int64) {
	_, _ = db.Pool.Exec(ctx, "SELECT pg_notify($1, $2::text)", database.ScheduleChannel, elderID)
}

// EnsureDay creates the ScheduleDay record if absent and reports whether
// this call created it.
func (r *ScheduleRepository) EnsureDay(ctx context.Context, elderID int64, day string, now time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO schedule_days (elder_id, day, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (elder_id, day) DO NOTHING`,
		elderID, day, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const itemColumns = `elder_id, day, item_id, medicine_id, name, type, amount, time_of_day,
	base_timestamp, status, taken_at, missed_logged_at, missed_notified, missed_notified_at,
	reminded_at, created_at`

func scanItem(row pgx.Row) (*models.ScheduleItem, error) {
	item := &models.ScheduleItem{}
	err := row.Scan(&item.ElderID, &item.Day, &item.ItemID, &item.MedicineID, &item.Name,
		&item.Type, &item.Amount, &item.TimeOfDay, &item.BaseTimestamp, &item.Status,
		&item.TakenAt, &item.MissedLoggedAt, &item.MissedNotified, &item.MissedNotifiedAt,
		&item.RemindedAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *ScheduleRepository) ListItems(ctx context.Context, elderID int64, day string) ([]*models.ScheduleItem, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+itemColumns+` FROM schedule_items
		 WHERE elder_id = $1 AND day = $2 ORDER BY base_timestamp, item_id`,
		elderID, day,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ScheduleItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns nil without error when the item does not exist.
func (r *ScheduleRepository) GetItem(ctx context.Context, elderID int64, day, itemID string) (*models.ScheduleItem, error) {
	item, err := scanItem(r.db.Pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM schedule_items
		 WHERE elder_id = $1 AND day = $2 AND item_id = $3`,
		elderID, day, itemID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateItemIfAbsent inserts the item keyed by its deterministic id.
// Concurrent and repeated calls are safe: at most one write wins, the
// rest report created=false without error.
func (r *ScheduleRepository) CreateItemIfAbsent(ctx context.Context, item *models.ScheduleItem) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO schedule_items (elder_id, day, item_id, medicine_id, name, type, amount,
		     time_of_day, base_timestamp, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (elder_id, day, item_id) DO NOTHING`,
		item.ElderID, item.Day, item.ItemID, item.MedicineID, item.Name, item.Type,
		item.Amount, item.TimeOfDay, item.BaseTimestamp, item.Status, item.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	created := tag.RowsAffected() == 1
	if created {
		notifyScheduleChange(ctx, r.db, item.ElderID)
	}
	return created, nil
}

// MarkMissed flips the item to missed and appends the missed-dose log
// entry in a single transaction. The row lock plus the terminal re-check
// make concurrent calls resolve to exactly one true return, and the log
// id (reused from the item id) keeps the append idempotent even across
// crash-retry boundaries.
func (r *ScheduleRepository) MarkMissed(ctx context.Context, elderID int64, day, itemID string, now time.Time) (bool, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	item, err := scanItem(tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM schedule_items
		 WHERE elder_id = $1 AND day = $2 AND item_id = $3 FOR UPDATE`,
		elderID, day, itemID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if item.Terminal() {
		// Another trigger got here first, or the dose was taken. Not an
		// error: terminal states are monotonic.
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE schedule_items SET status = $1, missed_logged_at = $2
		 WHERE elder_id = $3 AND day = $4 AND item_id = $5`,
		models.StatusMissed, now, elderID, day, itemID,
	); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO missed_dose_log (elder_id, day, log_id, medicine_id, name, amount, missed_dose_time, logged_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (elder_id, day, log_id) DO NOTHING`,
		elderID, day, itemID, item.MedicineID, item.Name, item.Amount, item.BaseTimestamp, now,
	); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	notifyScheduleChange(ctx, r.db, elderID)
	return true, nil
}

// MarkTaken records the user-confirm action under the same terminal-state
// discipline as the marker: a dose already missed or taken stays as it is.
func (r *ScheduleRepository) MarkTaken(ctx context.Context, elderID int64, day, itemID string, now time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE schedule_items SET status = $1, taken_at = $2
		 WHERE elder_id = $3 AND day = $4 AND item_id = $5 AND status NOT IN ($1, $6)`,
		models.StatusTaken, now, elderID, day, itemID, models.StatusMissed,
	)
	if err != nil {
		return false, err
	}
	taken := tag.RowsAffected() == 1
	if taken {
		notifyScheduleChange(ctx, r.db, elderID)
	}
	return taken, nil
}

func (r *ScheduleRepository) SetMissedNotified(ctx context.Context, elderID int64, day, itemID string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE schedule_items SET missed_notified = TRUE, missed_notified_at = $1
		 WHERE elder_id = $2 AND day = $3 AND item_id = $4`,
		at, elderID, day, itemID,
	)
	return err
}

func (r *ScheduleRepository) SetRemindedAt(ctx context.Context, elderID int64, day, itemID string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE schedule_items SET reminded_at = $1
		 WHERE elder_id = $2 AND day = $3 AND item_id = $4`,
		at, elderID, day, itemID,
	)
	return err
}
