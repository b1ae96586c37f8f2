package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no draft exists for a documentID.
	ErrNotFound = errors.New("draft document not found")
	// ErrFinalized rejects edits to a finalized document; callers fork instead.
	ErrFinalized = errors.New("document is finalized")
	// ErrInvalidTransition rejects status changes outside
	// draft -> finalizing -> finalized.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store persists draft documents, their version history and the field change
// log locally. Writes to one documentID are serialized through an advisory
// per-document lock; reads always see the last committed version.
type Store struct {
	db    *gorm.DB
	locks sync.Map // documentID -> *sync.Mutex
	log   *logrus.Logger
	now   func() time.Time
}

// NewStore migrates the draft schema and returns a store.
func NewStore(gdb *gorm.DB, log *logrus.Logger) (*Store, error) {
	if err := gdb.AutoMigrate(&DraftDocument{}, &DraftVersion{}, &FieldChangeLogEntry{}); err != nil {
		return nil, fmt.Errorf("migrate draft schema: %w", err)
	}
	return &Store{db: gdb, log: log, now: time.Now}, nil
}

func (s *Store) lockFor(documentID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(documentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SaveFields commits new resolved field values plus their generated content.
// An unchanged checksum is an idempotent no-op: no version, no log entries.
// A changed checksum archives the current state as a DraftVersion, appends
// one change-log entry per changed field and commits under version+1.
func (s *Store) SaveFields(ctx context.Context, documentID string, values map[string]string, content []byte, checksum string) (*DraftDocument, error) {
	mu := s.lockFor(documentID)
	if !mu.TryLock() {
		return nil, &ConcurrentWriteError{DocumentID: documentID}
	}
	defer mu.Unlock()

	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode draft values: %w", err)
	}
	now := s.now()

	var result *DraftDocument
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current DraftDocument
		err := tx.Where("document_id = ?", documentID).First(&current).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			doc := DraftDocument{
				DocumentID: documentID,
				Version:    1,
				Content:    content,
				Checksum:   checksum,
				ValuesJSON: string(valuesJSON),
				Status:     StatusDraft,
				Size:       int64(len(content)),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.Create(&doc).Error; err != nil {
				return err
			}
			if err := s.appendChangeLog(tx, documentID, nil, values, now); err != nil {
				return err
			}
			result = &doc
			return nil

		case err != nil:
			return err
		}

		if current.Status == StatusFinalized {
			return ErrFinalized
		}
		if current.Checksum == checksum {
			result = &current
			return nil
		}

		prior, err := current.Values()
		if err != nil {
			return err
		}

		archive := DraftVersion{
			DocumentID: current.DocumentID,
			Version:    current.Version,
			Content:    current.Content,
			Checksum:   current.Checksum,
			ValuesJSON: current.ValuesJSON,
			Status:     current.Status,
			CreatedAt:  now,
		}
		if err := tx.Create(&archive).Error; err != nil {
			return err
		}
		if err := s.appendChangeLog(tx, documentID, prior, values, now); err != nil {
			return err
		}

		current.Version++
		current.Content = content
		current.Checksum = checksum
		current.ValuesJSON = string(valuesJSON)
		current.Size = int64(len(content))
		current.UpdatedAt = now
		if err := tx.Save(&current).Error; err != nil {
			return err
		}
		result = &current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"version":     result.Version,
		"checksum":    result.Checksum,
	}).Debug("draft committed")

	return result, nil
}

// appendChangeLog writes one entry per field whose value differs from prior.
func (s *Store) appendChangeLog(tx *gorm.DB, documentID string, prior, next map[string]string, now time.Time) error {
	for field, newValue := range next {
		oldValue := prior[field]
		if oldValue == newValue {
			continue
		}
		entry := FieldChangeLogEntry{
			DocumentID: documentID,
			FieldName:  field,
			OldValue:   oldValue,
			NewValue:   newValue,
			Timestamp:  now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
	}
	// Fields removed outright are logged as transitions to blank.
	for field, oldValue := range prior {
		if _, ok := next[field]; ok {
			continue
		}
		entry := FieldChangeLogEntry{
			DocumentID: documentID,
			FieldName:  field,
			OldValue:   oldValue,
			NewValue:   "",
			Timestamp:  now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
	}
	return nil
}

// Get returns the current committed record for a documentID.
func (s *Store) Get(documentID string) (*DraftDocument, error) {
	var doc DraftDocument
	err := s.db.Where("document_id = ?", documentID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Versions returns archived snapshots, oldest first.
func (s *Store) Versions(documentID string) ([]DraftVersion, error) {
	var versions []DraftVersion
	err := s.db.Where("document_id = ?", documentID).Order("version ASC").Find(&versions).Error
	return versions, err
}

// ChangeLog returns the append-only field change history, oldest first.
func (s *Store) ChangeLog(documentID string) ([]FieldChangeLogEntry, error) {
	var entries []FieldChangeLogEntry
	err := s.db.Where("document_id = ?", documentID).Order("id ASC").Find(&entries).Error
	return entries, err
}

// SetStatus advances the lifecycle. Only draft -> finalizing -> finalized
// are legal; finalized is terminal.
func (s *Store) SetStatus(ctx context.Context, documentID string, next Status) (*DraftDocument, error) {
	mu := s.lockFor(documentID)
	if !mu.TryLock() {
		return nil, &ConcurrentWriteError{DocumentID: documentID}
	}
	defer mu.Unlock()

	doc, err := s.Get(documentID)
	if err != nil {
		return nil, err
	}

	legal := (doc.Status == StatusDraft && next == StatusFinalizing) ||
		(doc.Status == StatusFinalizing && next == StatusFinalized)
	if !legal {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.Status, next)
	}

	doc.Status = next
	doc.UpdatedAt = s.now()
	if err := s.db.WithContext(ctx).Save(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

// Fork copies the current state of a finalized document into a fresh
// documentID at version 1, status draft.
func (s *Store) Fork(ctx context.Context, sourceDocumentID, newDocumentID string) (*DraftDocument, error) {
	src, err := s.Get(sourceDocumentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := DraftDocument{
		DocumentID: newDocumentID,
		Version:    1,
		Content:    src.Content,
		Checksum:   src.Checksum,
		ValuesJSON: src.ValuesJSON,
		Status:     StatusDraft,
		Size:       src.Size,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}
