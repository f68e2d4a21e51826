package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	Changes   interface{}
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequestInfo stores the client address on ctx so entries written
// further down the call chain can record it.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes json.RawMessage
	if opts.Changes != nil {
		var err error
		changes, err = json.Marshal(opts.Changes)
		if err != nil {
			return err
		}
	}

	// Fall back to the request the entry belongs to
	ipAddress := opts.IPAddress
	userAgent := opts.UserAgent
	if ipAddress == "" {
		if gc, ok := ctx.(*gin.Context); ok {
			ipAddress = gc.ClientIP()
			userAgent = gc.GetHeader("User-Agent")
		} else if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
			ipAddress = info.ip
			userAgent = info.userAgent
		}
	}

	log := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  s.now(),
	}

	return s.repo.Create(ctx, log)
}

func (s *Service) History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}
