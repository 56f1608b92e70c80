package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

type AuditEmitter struct {
	Repo  AuditEventRepository
	Clock Clock
	// RecordRejections controls whether 400/401 outcomes are stored.
	RecordRejections bool
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock) *AuditEmitter {
	return &AuditEmitter{
		Repo:             repo,
		Clock:            clock,
		RecordRejections: true,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.EventType == "" || event.Result == "" || event.Code == 0 {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

// EmitDecision records the terminal outcome of one pipeline run. The subject
// is stored only as a sha256 hash.
func (e *AuditEmitter) EmitDecision(ctx context.Context, vc *domain.ValidationContext, result domain.Result) error {
	if e == nil || vc == nil {
		return nil
	}
	event := domain.AuditEvent{
		RequestID:    vc.Request.RequestID,
		SubjectHash:  hashString(vc.Subject),
		AuthType:     string(vc.Request.AuthType),
		IdentityType: vc.Request.IdentityType,
		KeyType:      vc.Request.KeyType,
		Code:         result.Code,
		State:        vc.State,
	}
	switch {
	case result.Code == 200:
		event.EventType = domain.AuditEventProofIssued
		event.Result = domain.AuditResultSuccess
	case result.Code >= 500:
		event.EventType = domain.AuditEventProofFailed
		event.Result = domain.AuditResultFailure
	default:
		if !e.RecordRejections {
			return nil
		}
		event.EventType = domain.AuditEventProofRejected
		event.Result = domain.AuditResultFailure
	}
	_, err := e.Emit(ctx, event)
	return err
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
