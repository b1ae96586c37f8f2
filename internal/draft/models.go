package draft

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a draft document. Finalized is terminal;
// further edits fork a new document.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusFinalizing Status = "finalizing"
	StatusFinalized  Status = "finalized"
)

// DraftDocument is the single current record per documentID.
type DraftDocument struct {
	DocumentID string `gorm:"primaryKey;size:36"`
	Version    int
	Content    []byte
	Checksum   string `gorm:"size:64"`
	ValuesJSON string
	Status     Status `gorm:"size:16"`
	Size       int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Values decodes the resolved field-value map of the current version.
func (d *DraftDocument) Values() (map[string]string, error) {
	values := make(map[string]string)
	if d.ValuesJSON == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(d.ValuesJSON), &values); err != nil {
		return nil, fmt.Errorf("decode draft values: %w", err)
	}
	return values, nil
}

// DraftVersion is an immutable historical snapshot, archived on every
// material change before the new state commits.
type DraftVersion struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:36;uniqueIndex:idx_draft_version,priority:1"`
	Version    int    `gorm:"uniqueIndex:idx_draft_version,priority:2"`
	Content    []byte
	Checksum   string `gorm:"size:64"`
	ValuesJSON string
	Status     Status `gorm:"size:16"`
	CreatedAt  time.Time
}

// FieldChangeLogEntry is append-only; entries are never deleted.
type FieldChangeLogEntry struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:36;index"`
	FieldName  string `gorm:"size:128"`
	OldValue   string
	NewValue   string
	Timestamp  time.Time
}

// ConcurrentWriteError reports per-document advisory lock contention during
// a version bump.
type ConcurrentWriteError struct {
	DocumentID string
}

func (e *ConcurrentWriteError) Error() string {
	return fmt.Sprintf("document %s is being written by another caller", e.DocumentID)
}
