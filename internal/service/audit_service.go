package service

import (
	"context"
	"encoding/json"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *auditService) Log(_ context.Context, entry *domain.AuditLog) {
	e := *entry
	go func() {
		ev := s.log.Info().
			Str("action", string(e.Action)).
			Str("resource_type", e.ResourceType).
			Str("resource_id", e.ResourceID)
		if e.ActorID != nil {
			ev = ev.Str("actor_id", *e.ActorID)
		}
		if e.IPAddress != "" {
			ev = ev.Str("ip", e.IPAddress)
		}
		ev.Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), &e); err != nil {
				s.log.Warn().Err(err).Str("action", string(e.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}

// newAuditEntry builds an entry; a nil actor marks a system action.
func newAuditEntry(actor *string, action domain.AuditAction, resourceType, resourceID string, details any) *domain.AuditLog {
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    time.Now().UTC(),
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = string(b)
		}
	}
	return entry
}
