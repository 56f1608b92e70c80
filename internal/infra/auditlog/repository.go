package auditlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCapacity = 1024

// Repository keeps the most recent audit events in memory and writes each one
// to the structured log. It stands in for Postgres when no DSN is configured.
type Repository struct {
	mu       sync.Mutex
	log      *zap.Logger
	capacity int
	seq      int64
	events   []domain.AuditEvent
}

func New(log *zap.Logger, capacity int) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Repository{log: log, capacity: capacity}
}

func (r *Repository) Append(_ context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.seq++
	event.Seq = r.seq
	r.events = append(r.events, event)
	if len(r.events) > r.capacity {
		r.events = append([]domain.AuditEvent(nil), r.events[len(r.events)-r.capacity:]...)
	}
	r.mu.Unlock()

	r.log.Info("audit event",
		zap.String("id", event.ID),
		zap.Int64("seq", event.Seq),
		zap.String("event_type", string(event.EventType)),
		zap.String("request_id", event.RequestID),
		zap.String("subject_hash", event.SubjectHash),
		zap.String("auth_type", event.AuthType),
		zap.String("identity_type", event.IdentityType),
		zap.String("key_type", event.KeyType),
		zap.Int("code", event.Code),
		zap.String("result", string(event.Result)),
		zap.String("state", string(event.State)),
		zap.Time("created_at", event.CreatedAt),
	)
	return event, nil
}

func (r *Repository) ListByRequest(_ context.Context, requestID string) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for _, event := range r.events {
		if event.RequestID == requestID {
			out = append(out, event)
		}
	}
	return out, nil
}

var _ usecase.AuditEventRepository = (*Repository)(nil)
