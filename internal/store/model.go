package store

import "time"

// Account links an identity to its schedule. It never exists without the
// ScheduleLog named by ScheduleID.
type Account struct {
	UID        string `gorm:"primaryKey;size:64"`
	Email      string `gorm:"not null"`
	ScheduleID string `gorm:"size:64;uniqueIndex;not null"`
	DarkMode   bool   `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScheduleLog owns the append-only activity records of one account.
type ScheduleLog struct {
	ID        string           `gorm:"primaryKey;size:64"`
	UID       string           `gorm:"size:64;index;not null"`
	Sharing   bool             `gorm:"not null"`
	Records   []ActivityRecord `gorm:"foreignKey:ScheduleID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActivityRecord is immutable once appended.
// ID is the schedule id followed by the decimal serial number.
type ActivityRecord struct {
	ID          string    `gorm:"primaryKey;size:96" json:"id" yaml:"id"`
	ScheduleID  string    `gorm:"size:64;not null;uniqueIndex:uq_records_schedule_serial,priority:1" json:"schedule_id" yaml:"schedule_id"`
	SerialNum   int64     `gorm:"not null;uniqueIndex:uq_records_schedule_serial,priority:2" json:"serial_num" yaml:"serial_num"`
	AuthorEmail string    `gorm:"not null" json:"author_email" yaml:"author_email"`
	Title       string    `gorm:"not null" json:"title" yaml:"title"`
	Notes       string    `gorm:"type:text;not null" json:"notes" yaml:"notes"`
	StartedAt   time.Time `gorm:"not null" json:"started_at" yaml:"started_at"`
	EndedAt     time.Time `gorm:"not null" json:"ended_at" yaml:"ended_at"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// RecordDraft is what a caller supplies; the store assigns id and serial.
type RecordDraft struct {
	AuthorEmail string
	Title       string
	Notes       string
	StartedAt   time.Time
	EndedAt     time.Time
}
