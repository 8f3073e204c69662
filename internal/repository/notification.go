package repository

import (
	"context"

	"github.com/carebell/carebell/internal/database"
	"github.com/carebell/carebell/internal/models"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO notifications (notification_id, elder_id, caretaker_id, type, message, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.NotificationID, n.ElderID, n.CaretakerID, n.Type, n.Message, n.Read, n.CreatedAt,
	)
	return err
}

func (r *NotificationRepository) ListRecentForCaretaker(ctx context.Context, caretakerID int64, limit int) ([]*models.Notification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT notification_id, elder_id, caretaker_id, type, message, read, created_at
		 FROM notifications WHERE caretaker_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		caretakerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.NotificationID, &n.ElderID, &n.CaretakerID, &n.Type,
			&n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE notification_id = $1`,
		notificationID,
	)
	return err
}
