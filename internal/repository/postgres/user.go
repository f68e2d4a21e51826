package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `
		SELECT id, role, first_name, last_name, email, department, telehealth
		FROM users
		WHERE id = $1
	`
	var user model.User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) ListByDepartment(ctx context.Context, role model.Role, department string) ([]*model.User, error) {
	query := `
		SELECT id, role, first_name, last_name, email, department, telehealth
		FROM users
		WHERE role = $1 AND lower(department) = lower($2)
	`
	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, role, department); err != nil {
		return nil, fmt.Errorf("failed to list users by department: %w", err)
	}
	return users, nil
}
