package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

type AuditRepository struct {
	mu   sync.Mutex
	logs []*model.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.AuditLog
	for _, l := range r.logs {
		if l.EntityType == entityType && l.EntityID == entityID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AuditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.logs[:0]
	var n int64
	for _, l := range r.logs {
		if l.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return n, nil
}

var _ repository.AuditRepository = (*AuditRepository)(nil)
