package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carebell/carebell/internal/database"
	"github.com/carebell/carebell/internal/models"
)

type MedicineRepository struct {
	db *database.DB
}

func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

func (r *MedicineRepository) Create(ctx context.Context, med *models.Medicine) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO medicines (medicine_id, elder_id, name, type, amount, times, start_date, end_date, recurrence_rule)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		med.MedicineID, med.ElderID, med.Name, med.Type, med.Amount, med.Times,
		med.StartDate, med.EndDate, med.RecurrenceRule,
	).Scan(&med.CreatedAt)
	if err != nil {
		return err
	}
	notifyScheduleChange(ctx, r.db, med.ElderID)
	return nil
}

func (r *MedicineRepository) ListByElder(ctx context.Context, elderID int64) ([]*models.Medicine, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT medicine_id, elder_id, name, type, amount, times, start_date, end_date,
		        recurrence_rule, force_ended, force_ended_at, force_ended_by, force_end_reason, created_at
		 FROM medicines WHERE elder_id = $1 ORDER BY created_at`,
		elderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*models.Medicine
	for rows.Next() {
		med := &models.Medicine{}
		if err := rows.Scan(&med.MedicineID, &med.ElderID, &med.Name, &med.Type, &med.Amount,
			&med.Times, &med.StartDate, &med.EndDate, &med.RecurrenceRule,
			&med.ForceEnded, &med.ForceEndedAt, &med.ForceEndedBy, &med.ForceEndReason,
			&med.CreatedAt); err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

// GetByID returns nil without error when the medicine does not exist.
func (r *MedicineRepository) GetByID(ctx context.Context, elderID int64, medicineID string) (*models.Medicine, error) {
	med := &models.Medicine{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT medicine_id, elder_id, name, type, amount, times, start_date, end_date,
		        recurrence_rule, force_ended, force_ended_at, force_ended_by, force_end_reason, created_at
		 FROM medicines WHERE elder_id = $1 AND medicine_id = $2`,
		elderID, medicineID,
	).Scan(&med.MedicineID, &med.ElderID, &med.Name, &med.Type, &med.Amount,
		&med.Times, &med.StartDate, &med.EndDate, &med.RecurrenceRule,
		&med.ForceEnded, &med.ForceEndedAt, &med.ForceEndedBy, &med.ForceEndReason,
		&med.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return med, nil
}

// ForceEnd stops the medicine and purges its unresolved dose instances in
// one transaction. Terminal instances and log entries stay: history is
// immutable.
func (r *MedicineRepository) ForceEnd(ctx context.Context, elderID int64, medicineID string, actorID int64, reason string, at time.Time) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE medicines
		 SET force_ended = TRUE, force_ended_at = $1, force_ended_by = $2, force_end_reason = $3
		 WHERE elder_id = $4 AND medicine_id = $5 AND NOT force_ended`,
		at, actorID, reason, elderID, medicineID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM schedule_items
		 WHERE elder_id = $1 AND medicine_id = $2 AND status NOT IN ($3, $4)`,
		elderID, medicineID, models.StatusTaken, models.StatusMissed,
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	notifyScheduleChange(ctx, r.db, elderID)
	return nil
}
