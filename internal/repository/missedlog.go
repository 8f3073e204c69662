package repository

import (
	"context"

	"github.com/carebell/carebell/internal/database"
	"github.com/carebell/carebell/internal/models"
)

// MissedLogRepository reads the append-only missed-dose log. Writes happen
// only inside ScheduleRepository.MarkMissed, in the same transaction as
// the status flip.
type MissedLogRepository struct {
	db *database.DB
}

func NewMissedLogRepository(db *database.DB) *MissedLogRepository {
	return &MissedLogRepository{db: db}
}

func (r *MissedLogRepository) ListRecent(ctx context.Context, elderID int64, limit int) ([]*models.MissedDoseLogEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT elder_id, day, log_id, medicine_id, name, amount, missed_dose_time, logged_at
		 FROM missed_dose_log WHERE elder_id = $1
		 ORDER BY missed_dose_time DESC LIMIT $2`,
		elderID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.MissedDoseLogEntry
	for rows.Next() {
		entry := &models.MissedDoseLogEntry{}
		if err := rows.Scan(&entry.ElderID, &entry.Day, &entry.LogID, &entry.MedicineID, &entry.Name,
			&entry.Amount, &entry.MissedDoseTime, &entry.LoggedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
