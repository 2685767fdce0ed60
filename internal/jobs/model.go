package jobs

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TypeCredentialPurge = "CREDENTIAL_PURGE"

	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

type Job struct {
	ID  uint64 `gorm:"primaryKey"`
	UID string `gorm:"size:64;index;not null"`

	Type    string         `gorm:"type:text;not null"`
	Payload datatypes.JSON `gorm:"not null"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null"`

	Attempts    int `gorm:"not null"`
	MaxAttempts int `gorm:"not null"`

	LockedBy *string `gorm:"type:text"`
	LockedAt *time.Time

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
