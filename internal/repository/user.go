package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/carebell/carebell/internal/database"
	"github.com/carebell/carebell/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64, userName string) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (user_id, user_name) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_name = EXCLUDED.user_name
		 RETURNING user_id, user_name, display_name, role, elder_ids, caretaker_ids, created_at`,
		userID, userName,
	).Scan(&user.UserID, &user.UserName, &user.DisplayName, &user.Role,
		&user.ElderIDs, &user.CaretakerIDs, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID returns nil without error when the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, user_name, display_name, role, elder_ids, caretaker_ids, created_at
		 FROM users WHERE user_id = $1`,
		userID,
	).Scan(&user.UserID, &user.UserName, &user.DisplayName, &user.Role,
		&user.ElderIDs, &user.CaretakerIDs, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) SetRole(ctx context.Context, userID int64, role, displayName string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET role = $1, display_name = $2 WHERE user_id = $3`,
		role, displayName, userID,
	)
	return err
}

// Link records the caretaker-elder relationship in both directions: the
// caretaker's elder list is the primary link, the elder's caretaker list
// is kept for fallback resolution.
func (r *UserRepository) Link(ctx context.Context, caretakerID, elderID int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE users SET elder_ids = array_append(elder_ids, $1)
		 WHERE user_id = $2 AND NOT ($1 = ANY(elder_ids))`,
		elderID, caretakerID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET caretaker_ids = array_append(caretaker_ids, $1)
		 WHERE user_id = $2 AND NOT ($1 = ANY(caretaker_ids))`,
		caretakerID, elderID,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *UserRepository) ListCaretakersForElder(ctx context.Context, elderID int64) ([]*models.User, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT user_id, user_name, display_name, role, elder_ids, caretaker_ids, created_at
		 FROM users WHERE role = $1 AND $2 = ANY(elder_ids)
		 ORDER BY user_id`,
		models.RoleCaretaker, elderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.UserID, &user.UserName, &user.DisplayName, &user.Role,
			&user.ElderIDs, &user.CaretakerIDs, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) ListElderIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT user_id FROM users WHERE role = $1 ORDER BY user_id`,
		models.RoleElder,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
