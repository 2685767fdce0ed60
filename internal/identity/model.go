package identity

import "time"

// Credential is the identity provider's record of a user, independent of
// the account and schedule rows the application keeps.
type Credential struct {
	UID              string `gorm:"primaryKey;size:64"`
	Email            string `gorm:"size:320;not null"`
	PasswordHash     string `gorm:"not null"`
	FederatedSubject string `gorm:"size:255;not null"`
	CreatedAt        time.Time
}

// IdentitySession backs one issued token. A token is valid only while its
// row exists, is unrevoked and unexpired.
type IdentitySession struct {
	ID        string `gorm:"primaryKey;size:64"`
	UID       string `gorm:"size:64;not null"`
	Durable   bool   `gorm:"not null"`
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

type Persistence int

const (
	SessionScoped Persistence = iota
	Durable
)

func (p Persistence) String() string {
	if p == Durable {
		return "durable"
	}
	return "session"
}

// PersistenceFor maps a "remember me" choice onto a persistence mode.
func PersistenceFor(remember bool) Persistence {
	if remember {
		return Durable
	}
	return SessionScoped
}

// Session is a live authenticated identity handle.
type Session struct {
	UID         string
	Email       string
	Token       string
	ExpiresAt   time.Time
	Persistence Persistence
}
