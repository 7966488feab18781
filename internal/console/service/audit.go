package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-roles-modifier/internal/audit"
	"github.com/xela07ax/spaceai-roles-modifier/internal/repository/postgres"
)

// AuditLogProvider описывает контракт для чтения журнала решений.
type AuditLogProvider interface {
	ListAudit(ctx context.Context, f postgres.AuditFilter) ([]audit.DecisionEvent, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchLogs запрашивает журнал с фильтрацией; фронтенд всегда получает [], а не null.
func (s *AuditService) FetchLogs(ctx context.Context, f postgres.AuditFilter) ([]audit.DecisionEvent, error) {
	logs, err := s.repo.ListAudit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	if logs == nil {
		logs = []audit.DecisionEvent{}
	}
	return logs, nil
}
