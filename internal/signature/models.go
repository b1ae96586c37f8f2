package signature

import (
	"fmt"
	"time"
)

// Role identifies a required participant on a document.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleNotary Role = "notary"
)

// Valid reports whether the role belongs to the fixed participant set.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleNotary:
		return true
	}
	return false
}

// Status is a session's state. Every non-pending status is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSigned    Status = "signed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Session is one signer's time-bounded opportunity to execute a document.
type Session struct {
	Token            string `gorm:"primaryKey;size:36"`
	DealID           string `gorm:"size:36;index"`
	DocumentID       string `gorm:"size:36;index"`
	SignerRole       Role   `gorm:"size:16"`
	SignerName       string `gorm:"size:128"`
	SignerEmail      string `gorm:"size:128"`
	Status           Status `gorm:"size:16;index"`
	ConsentGiven     bool
	ConsentTimestamp *time.Time
	IPAddress        string `gorm:"size:64"`
	UserAgent        string `gorm:"size:256"`
	Geolocation      string `gorm:"size:128"`
	ExpiresAt        time.Time
	SignedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Signature is the persisted artifact backing a signed session. The image
// under StorageKey is retained with the document; the display copy under
// DisplayKey lives only until ScheduledDeletionAt.
type Signature struct {
	ID                  string `gorm:"primaryKey;size:36"`
	SessionToken        string `gorm:"size:36;index"`
	StorageKey          string `gorm:"size:256"`
	DisplayKey          string `gorm:"size:256"`
	ConsentTimestamp    time.Time
	IPAddress           string `gorm:"size:64"`
	UserAgent           string `gorm:"size:256"`
	CreatedAt           time.Time
	ScheduledDeletionAt time.Time
	DeletedAt           *time.Time
}

// SessionExpiredError rejects operations on a session past its hard expiry.
// Expired sessions cannot be completed; callers recreate them.
type SessionExpiredError struct {
	Token     string
	ExpiresAt time.Time
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("signature session %s expired at %s", e.Token, e.ExpiresAt.Format(time.RFC3339))
}

// ConsentMissingError rejects a submission without explicit consent.
type ConsentMissingError struct {
	Token string
}

func (e *ConsentMissingError) Error() string {
	return fmt.Sprintf("signature session %s: consent not given", e.Token)
}
