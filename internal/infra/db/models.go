package db

import "time"

type AuditEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	Seq           int64  `gorm:"uniqueIndex;not null"`
	EventType     string `gorm:"not null"`
	RequestID     string `gorm:"index;not null"`
	SubjectHash   *string
	AuthType      string `gorm:"not null"`
	IdentityType  string `gorm:"not null"`
	KeyType       *string
	Code          int       `gorm:"not null"`
	Result        string    `gorm:"not null"`
	State         string    `gorm:"not null"`
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}
