package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

// Directory answers the identity questions scheduling asks about users:
// role, names, email, department and telehealth capability. Records are
// owned by the profile service; lookups are cached for ttl.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	ProviderIDsInDepartment(ctx context.Context, department string) ([]uuid.UUID, error)
}

type Service struct {
	repo  repository.UserRepository
	cache *cache.Cache
}

func NewService(repo repository.UserRepository, ttl time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Get returns repository.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	key := "user:" + id.String()
	if cached, found := s.cache.Get(key); found {
		u := *cached.(*model.User)
		return &u, nil
	}

	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, u)

	cp := *u
	return &cp, nil
}

func (s *Service) ProviderIDsInDepartment(ctx context.Context, department string) ([]uuid.UUID, error) {
	key := "department:" + strings.ToLower(department)
	if cached, found := s.cache.Get(key); found {
		return append([]uuid.UUID(nil), cached.([]uuid.UUID)...), nil
	}

	doctors, err := s.repo.ListByDepartment(ctx, model.RoleDoctor, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(doctors))
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}
	s.cache.SetDefault(key, ids)
	return append([]uuid.UUID(nil), ids...), nil
}
