package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/universalautobrokers/dealerdocs/internal/objstore"
)

var (
	// ErrNotFound is returned for unknown session tokens.
	ErrNotFound = errors.New("signature session not found")
	// ErrTerminal rejects transitions out of any non-pending state.
	ErrTerminal = errors.New("signature session is in a terminal state")
)

// displayCopyWidth is the pixel width of the resized ephemeral display copy.
const displayCopyWidth = 480

// Blobs is the object-storage surface the service needs.
type Blobs interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// CreateRequest opens a session for one (document, signer role).
type CreateRequest struct {
	DealID      string
	DocumentID  string
	SignerRole  Role
	SignerName  string
	SignerEmail string
	TTL         time.Duration
}

// SubmitRequest completes a pending session with a captured signature.
type SubmitRequest struct {
	Token       string
	Consent     bool
	Image       []byte
	IPAddress   string
	UserAgent   string
	Geolocation string
}

// Service is the signature session state machine. States move
// pending -> {signed, expired, cancelled}; non-pending states are terminal.
type Service struct {
	db        *gorm.DB
	blobs     Blobs
	retention time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

// NewService migrates the signature schema and returns the service.
// retention is the horizon after which the ephemeral display copy is purged.
func NewService(gdb *gorm.DB, blobs Blobs, retention time.Duration, log *logrus.Logger) (*Service, error) {
	if err := gdb.AutoMigrate(&Session{}, &Signature{}); err != nil {
		return nil, fmt.Errorf("migrate signature schema: %w", err)
	}
	return &Service{
		db:        gdb,
		blobs:     blobs,
		retention: retention,
		log:       log,
		now:       time.Now,
	}, nil
}

// Create opens a pending session with a hard expiry.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if !req.SignerRole.Valid() {
		return nil, fmt.Errorf("unknown signer role %q", req.SignerRole)
	}

	now := s.now()
	session := &Session{
		Token:       uuid.NewString(),
		DealID:      req.DealID,
		DocumentID:  req.DocumentID,
		SignerRole:  req.SignerRole,
		SignerName:  req.SignerName,
		SignerEmail: req.SignerEmail,
		Status:      StatusPending,
		ExpiresAt:   now.Add(req.TTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("persist signature session: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"token":       session.Token,
		"document_id": session.DocumentID,
		"role":        session.SignerRole,
		"expires_at":  session.ExpiresAt,
	}).Info("signature session created")

	return session, nil
}

// Get loads a session, flipping a past-expiry pending session to expired on
// the way out. Expiry is a state check, not an exception.
func (s *Service) Get(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if session.Status == StatusPending && s.now().After(session.ExpiresAt) {
		session.Status = StatusExpired
		session.UpdatedAt = s.now()
		if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
			return nil, err
		}
	}
	return &session, nil
}

// Submit atomically marks a session signed. It requires consent, a pending
// unexpired session, and persists the Signature artifact before the state
// flips — a session can never be signed without its Signature existing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Signature, error) {
	session, err := s.Get(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	if session.Status == StatusExpired {
		return nil, &SessionExpiredError{Token: session.Token, ExpiresAt: session.ExpiresAt}
	}
	if session.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, session.Status)
	}
	if !req.Consent {
		return nil, &ConsentMissingError{Token: session.Token}
	}
	if s.blobs == nil {
		return nil, errors.New("no object storage configured for signature capture")
	}

	now := s.now()
	sig := &Signature{
		ID:                  uuid.NewString(),
		SessionToken:        session.Token,
		ConsentTimestamp:    now,
		IPAddress:           req.IPAddress,
		UserAgent:           req.UserAgent,
		CreatedAt:           now,
		ScheduledDeletionAt: now.Add(s.retention),
	}
	sig.StorageKey = objstore.SignatureKey(session.Token, sig.ID)

	if err := s.blobs.Upload(ctx, sig.StorageKey, req.Image, "image/png"); err != nil {
		return nil, err
	}

	if display, ok := s.displayCopy(req.Image); ok {
		key := objstore.SignatureDisplayKey(session.Token, sig.ID)
		if err := s.blobs.Upload(ctx, key, display, "image/png"); err == nil {
			sig.DisplayKey = key
		} else {
			s.log.WithError(err).Warn("signature display copy upload failed")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sig).Error; err != nil {
			return err
		}
		session.Status = StatusSigned
		session.ConsentGiven = true
		session.ConsentTimestamp = &now
		session.IPAddress = req.IPAddress
		session.UserAgent = req.UserAgent
		session.Geolocation = req.Geolocation
		session.SignedAt = &now
		session.UpdatedAt = now
		return tx.Save(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("commit signature: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"token":        session.Token,
		"signature_id": sig.ID,
		"role":         session.SignerRole,
	}).Info("signature session signed")

	return sig, nil
}

// Cancel terminates a pending session. Cancellation is passive from the
// signer's perspective; open UIs learn of it by polling.
func (s *Service) Cancel(ctx context.Context, token string) (*Session, error) {
	session, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, session.Status)
	}

	session.Status = StatusCancelled
	session.UpdatedAt = s.now()
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// Sessions returns every session for a document, newest first.
func (s *Service) Sessions(ctx context.Context, documentID string) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// AllCollected reports whether every required role has a signed session for
// the document. It is always recomputed from session state, never cached.
func (s *Service) AllCollected(ctx context.Context, documentID string, required []Role) (bool, error) {
	var signed []Session
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND status = ?", documentID, StatusSigned).
		Find(&signed).Error
	if err != nil {
		return false, err
	}

	have := make(map[Role]bool, len(signed))
	for _, sess := range signed {
		have[sess.SignerRole] = true
	}
	for _, role := range required {
		if !have[role] {
			return false, nil
		}
	}
	return true, nil
}

// displayCopy renders the resized ephemeral preview of a signature image.
func (s *Service) displayCopy(image []byte) ([]byte, bool) {
	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return nil, false
	}
	resized := imaging.Resize(img, displayCopyWidth, 0, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, resized, imaging.PNG); err != nil {
		return nil, false
	}
	return out.Bytes(), true
}
