package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already used")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoCredential       = errors.New("credential not found")
	ErrFederationDisabled = errors.New("federated login is not configured")
)

// Describe returns the text of the known failure behind err, or a generic
// message so store details never reach a user.
func Describe(err error) string {
	for _, known := range []error{ErrInvalidCredentials, ErrEmailTaken, ErrInvalidToken, ErrNoCredential, ErrFederationDisabled} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "authentication failed"
}

// Authority issues and checks credentials and sessions. It is safe for
// concurrent use; per-process session state lives in Client.
type Authority struct {
	DB         *gorm.DB
	JWT        *JWT
	Federation *FederatedVerifier

	DurableTTL time.Duration
	ScopedTTL  time.Duration

	Now func() time.Time
}

func (a *Authority) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// Register creates a password credential and signs it in.
func (a *Authority) Register(ctx context.Context, email, password string, p Persistence) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	c := Credential{UID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: a.now()}
	if err := a.DB.WithContext(ctx).Create(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, err
	}
	return a.issue(ctx, c, p)
}

func (a *Authority) Authenticate(ctx context.Context, email, password string, p Persistence) (Session, error) {
	email = normalizeEmail(email)
	var c Credential
	if err := a.DB.WithContext(ctx).Where("email = ?", email).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !ComparePassword(c.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return a.issue(ctx, c, p)
}

// Federate signs in the subject of a verified ID token, creating its
// credential on first use. A subject always maps to the same uid.
func (a *Authority) Federate(ctx context.Context, idToken string, p Persistence) (Session, error) {
	if a.Federation == nil {
		return Session{}, ErrFederationDisabled
	}
	as, err := a.Federation.Verify(idToken)
	if err != nil {
		return Session{}, err
	}

	db := a.DB.WithContext(ctx)
	var c Credential
	err = db.Where("federated_subject = ?", as.Subject).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = Credential{UID: uuid.NewString(), Email: as.Email, FederatedSubject: as.Subject, CreatedAt: a.now()}
		err = db.Create(&c).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent first login, or the email
			// belongs to a password credential
			err = db.Where("federated_subject = ?", as.Subject).First(&c).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Session{}, ErrEmailTaken
			}
		}
	}
	if err != nil {
		return Session{}, err
	}
	return a.issue(ctx, c, p)
}

func (a *Authority) issue(ctx context.Context, c Credential, p Persistence) (Session, error) {
	now := a.now()
	ttl := a.ScopedTTL
	if p == Durable {
		ttl = a.DurableTTL
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	s := IdentitySession{ID: uuid.NewString(), UID: c.UID, Durable: p == Durable, ExpiresAt: now.Add(ttl), CreatedAt: now}
	if err := a.DB.WithContext(ctx).Create(&s).Error; err != nil {
		return Session{}, err
	}
	token, err := a.JWT.Sign(c.UID, s.ID, now, s.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return Session{UID: c.UID, Email: c.Email, Token: token, ExpiresAt: s.ExpiresAt, Persistence: p}, nil
}

// Verify resolves a token back into its session.
func (a *Authority) Verify(ctx context.Context, token string) (Session, error) {
	uid, sid, err := a.JWT.Verify(token)
	if err != nil {
		return Session{}, err
	}

	db := a.DB.WithContext(ctx)
	var s IdentitySession
	if err := db.Where("id = ? AND uid = ?", sid, uid).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if s.RevokedAt != nil || !a.now().Before(s.ExpiresAt) {
		return Session{}, ErrInvalidToken
	}

	var c Credential
	if err := db.Where("uid = ?", uid).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	p := SessionScoped
	if s.Durable {
		p = Durable
	}
	return Session{UID: uid, Email: c.Email, Token: token, ExpiresAt: s.ExpiresAt, Persistence: p}, nil
}

// Revoke ends the session behind token. Revoking twice is not an error.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	_, sid, err := a.JWT.Verify(token)
	if err != nil {
		return err
	}
	return a.DB.WithContext(ctx).
		Model(&IdentitySession{}).
		Where("id = ? AND revoked_at IS NULL", sid).
		Update("revoked_at", a.now()).Error
}

// Delete removes a credential and every session issued for it.
func (a *Authority) Delete(ctx context.Context, uid string) error {
	return a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uid = ?", uid).Delete(&IdentitySession{}).Error; err != nil {
			return err
		}
		res := tx.Where("uid = ?", uid).Delete(&Credential{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoCredential
		}
		return nil
	})
}

// Purge deletes uid's credential and its sessions unless keep reports the
// credential is still in use. The credential row stays locked while keep
// runs, and keep must read through tx. It reports whether anything was
// deleted.
func (a *Authority) Purge(ctx context.Context, uid string, keep func(tx *gorm.DB, sessions []IdentitySession) (bool, error)) (bool, error) {
	var purged bool
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Credential
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("uid = ?", uid).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoCredential
			}
			return err
		}

		var sessions []IdentitySession
		if err := tx.Where("uid = ?", uid).Find(&sessions).Error; err != nil {
			return err
		}
		inUse, err := keep(tx, sessions)
		if err != nil || inUse {
			return err
		}

		if err := tx.Where("uid = ?", uid).Delete(&IdentitySession{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&c).Error; err != nil {
			return err
		}
		purged = true
		return nil
	})
	return purged, err
}

// Exists reports whether uid still has a credential.
func (a *Authority) Exists(ctx context.Context, uid string) (bool, error) {
	var n int64
	err := a.DB.WithContext(ctx).Model(&Credential{}).Where("uid = ?", uid).Count(&n).Error
	return n > 0, err
}
