package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"

	"gorm.io/gorm"
)

const auditChainVersion = 1

var ErrAuditChainBroken = errors.New("audit chain broken")

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Append stores event at the head of the audit chain. Rows are never updated
// afterwards; the table rejects UPDATE and DELETE.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.ID = id
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	event.CreatedAt = event.CreatedAt.Truncate(time.Microsecond)

	var out domain.AuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextAuditSeq(ctx, tx)
		if err != nil {
			return err
		}
		event.Seq = seq
		event.PrevEventHash = prevHash

		eventHash, err := computeAuditEventHash(event)
		if err != nil {
			return err
		}
		event.EventHash = eventHash

		model := auditEventModelFromDomain(event)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = event
		return nil
	})
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return out, nil
}

func (r *AuditEventRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		out = append(out, auditEventFromModel(model))
	}
	return out, nil
}

// VerifyChain walks the whole table in sequence order and recomputes every
// event hash.
func (r *AuditEventRepository) VerifyChain(ctx context.Context) error {
	if r.db == nil {
		return errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).Order("seq ASC").Find(&models).Error; err != nil {
		return err
	}
	prev := zeroAuditHash()
	for i, model := range models {
		event := auditEventFromModel(model)
		if event.Seq != int64(i+1) {
			return fmt.Errorf("%w: seq %d at position %d", ErrAuditChainBroken, event.Seq, i+1)
		}
		if event.PrevEventHash != prev {
			return fmt.Errorf("%w: prev hash mismatch at seq %d", ErrAuditChainBroken, event.Seq)
		}
		want, err := computeAuditEventHash(event)
		if err != nil {
			return err
		}
		if want != event.EventHash {
			return fmt.Errorf("%w: event hash mismatch at seq %d", ErrAuditChainBroken, event.Seq)
		}
		prev = event.EventHash
	}
	return nil
}

func auditEventModelFromDomain(event domain.AuditEvent) AuditEventModel {
	return AuditEventModel{
		ID:            event.ID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		RequestID:     event.RequestID,
		SubjectHash:   stringPtrIfNotEmpty(event.SubjectHash),
		AuthType:      event.AuthType,
		IdentityType:  event.IdentityType,
		KeyType:       stringPtrIfNotEmpty(event.KeyType),
		Code:          event.Code,
		Result:        string(event.Result),
		State:         string(event.State),
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

func auditEventFromModel(model AuditEventModel) domain.AuditEvent {
	return domain.AuditEvent{
		ID:            model.ID,
		Seq:           model.Seq,
		EventType:     domain.AuditEventType(model.EventType),
		RequestID:     model.RequestID,
		SubjectHash:   stringValue(model.SubjectHash),
		AuthType:      model.AuthType,
		IdentityType:  model.IdentityType,
		KeyType:       stringValue(model.KeyType),
		Code:          model.Code,
		Result:        domain.AuditResult(model.Result),
		State:         domain.PipelineState(model.State),
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}
}

// computeAuditEventHash hashes the JSON encoding of the chained fields.
// encoding/json sorts map keys, so the encoding is stable.
func computeAuditEventHash(event domain.AuditEvent) (string, error) {
	if event.PrevEventHash == "" {
		return "", errors.New("prev_event_hash is required")
	}
	payload := map[string]any{
		"v":               auditChainVersion,
		"seq":             event.Seq,
		"event_type":      string(event.EventType),
		"request_id":      event.RequestID,
		"subject_hash":    event.SubjectHash,
		"auth_type":       event.AuthType,
		"identity_type":   event.IdentityType,
		"key_type":        event.KeyType,
		"code":            event.Code,
		"result":          string(event.Result),
		"state":           string(event.State),
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func nextAuditSeq(ctx context.Context, tx *gorm.DB) (int64, string, error) {
	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM audit_seq WHERE id = 1 FOR UPDATE",
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE audit_seq SET seq = ? WHERE id = 1",
		nextSeq,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := zeroAuditHash()
	if currentSeq > 0 {
		var prev AuditEventModel
		if err := tx.WithContext(ctx).
			Where("seq = ?", currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash at seq %d", currentSeq)
	}
	return nextSeq, prevHash, nil
}

func zeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

var _ usecase.AuditEventRepository = (*AuditEventRepository)(nil)
