package domain

import "time"

type AuditEventType string

const (
	AuditEventProofIssued   AuditEventType = "proof_issued"
	AuditEventProofRejected AuditEventType = "proof_rejected"
	AuditEventProofFailed   AuditEventType = "proof_failed"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEvent records a pipeline decision. It never carries the signed proof
// or the raw caller subject.
type AuditEvent struct {
	ID           string
	Seq          int64
	EventType    AuditEventType
	RequestID    string
	SubjectHash  string
	AuthType     string
	IdentityType string
	KeyType      string
	Code         int
	Result       AuditResult
	State        PipelineState

	// PrevEventHash and EventHash chain each stored event to the one before it.
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
