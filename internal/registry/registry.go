package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/universalautobrokers/dealerdocs/internal/mapping"
	"github.com/universalautobrokers/dealerdocs/internal/pdfform"
)

// ErrNotFound is returned when no template matches the requested identity.
var ErrNotFound = errors.New("template not found")

// BlobStore persists blank template bytes. A nil store skips persistence,
// which the tests use.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// PublishResult reports the outcome of one publish call.
type PublishResult struct {
	Template *Template
	Created  bool
	Unmapped []string
}

// Registry versions templates keyed by (documentType, jurisdiction). It is an
// explicit instance with its own lifecycle, passed by reference; there is no
// ambient template cache.
type Registry struct {
	db        *gorm.DB
	extractor *pdfform.Extractor
	engine    *mapping.Engine
	blobs     BlobStore
	log       *logrus.Logger
}

// New migrates the template schema and returns a registry.
func New(gdb *gorm.DB, blobs BlobStore, log *logrus.Logger) (*Registry, error) {
	if err := gdb.AutoMigrate(&Template{}); err != nil {
		return nil, fmt.Errorf("migrate template schema: %w", err)
	}
	return &Registry{
		db:        gdb,
		extractor: pdfform.NewExtractor(log),
		engine:    mapping.NewEngine(log),
		blobs:     blobs,
		log:       log,
	}, nil
}

// Publish registers blank template bytes for a document type and
// jurisdiction. An unchanged checksum is a no-op returning the current
// version. A changed checksum creates a new immutable version: fields are
// re-extracted and re-mapped, prior mappings carry forward for fields whose
// names are unchanged, and fields without a carried-over mapping are marked
// pending re-approval (autoMapped=false, confidence=0).
func (r *Registry) Publish(ctx context.Context, blankPDF []byte, documentType, jurisdiction string) (*PublishResult, error) {
	pageCount, err := pdfform.Probe(blankPDF)
	if err != nil {
		return nil, err
	}

	checksum := BytesChecksum(blankPDF)

	current, err := r.Latest(documentType, jurisdiction)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if current != nil && current.Checksum == checksum {
		return &PublishResult{Template: current, Created: false}, nil
	}

	fields, err := r.extractor.Extract(blankPDF)
	if err != nil {
		return nil, err
	}
	autoResult := r.engine.AutoMap(fields)

	version := 1
	mappings := autoResult.Mappings
	if current != nil {
		version = current.Version + 1
		prior, err := current.Mappings()
		if err != nil {
			return nil, err
		}
		mappings = carryForward(prior, autoResult.Mappings, fields)
	}

	tmpl := &Template{
		ID:           uuid.NewString(),
		DocumentType: documentType,
		Jurisdiction: jurisdiction,
		Version:      version,
		Checksum:     checksum,
		PageCount:    pageCount,
	}
	if err := tmpl.setFields(fields); err != nil {
		return nil, err
	}
	if err := tmpl.setMappings(mappings); err != nil {
		return nil, err
	}

	if r.blobs != nil {
		key := fmt.Sprintf("templates/%s/%s/v%d/%s.pdf", documentType, jurisdiction, version, checksum)
		if err := r.blobs.Upload(ctx, key, blankPDF, "application/pdf"); err != nil {
			return nil, err
		}
		tmpl.StorageKey = key
	}

	if err := r.db.WithContext(ctx).Create(tmpl).Error; err != nil {
		return nil, fmt.Errorf("persist template version: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"document_type": documentType,
		"jurisdiction":  jurisdiction,
		"version":       version,
		"fields":        len(fields),
		"unmapped":      len(autoResult.Unmapped),
	}).Info("published template version")

	return &PublishResult{Template: tmpl, Created: true, Unmapped: autoResult.Unmapped}, nil
}

// carryForward merges by field name over every extracted field: a prior
// mapping survives verbatim whether or not the field auto-mapped this time
// (manual assignments match no rule); every other field keeps its fresh
// auto-map suggestion but is downgraded to pending re-approval.
func carryForward(prior, fresh []mapping.FieldMapping, fields []pdfform.FieldDescriptor) []mapping.FieldMapping {
	priorByField := make(map[string]mapping.FieldMapping, len(prior))
	for _, m := range prior {
		priorByField[m.SourceField] = m
	}
	freshByField := make(map[string]mapping.FieldMapping, len(fresh))
	for _, m := range fresh {
		freshByField[m.SourceField] = m
	}

	merged := make([]mapping.FieldMapping, 0, len(fields))
	for _, d := range fields {
		if kept, ok := priorByField[d.Name]; ok {
			merged = append(merged, kept)
			continue
		}
		if m, ok := freshByField[d.Name]; ok {
			m.AutoMapped = false
			m.Confidence = 0
			merged = append(merged, m)
		}
	}
	return merged
}

// Latest returns the highest published version for an identity.
func (r *Registry) Latest(documentType, jurisdiction string) (*Template, error) {
	var tmpl Template
	err := r.db.
		Where("document_type = ? AND jurisdiction = ?", documentType, jurisdiction).
		Order("version DESC").
		First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GetVersion returns one specific immutable version.
func (r *Registry) GetVersion(documentType, jurisdiction string, version int) (*Template, error) {
	var tmpl Template
	err := r.db.
		Where("document_type = ? AND jurisdiction = ? AND version = ?", documentType, jurisdiction, version).
		First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GetByID looks a template up by its opaque identifier.
func (r *Registry) GetByID(id string) (*Template, error) {
	var tmpl Template
	err := r.db.Where("id = ?", id).First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// List returns every version for an identity, oldest first.
func (r *Registry) List(documentType, jurisdiction string) ([]Template, error) {
	var templates []Template
	err := r.db.
		Where("document_type = ? AND jurisdiction = ?", documentType, jurisdiction).
		Order("version ASC").
		Find(&templates).Error
	return templates, err
}

// SetMapping assigns or replaces the mapping for one field of a version;
// manual assignments clear the auto-mapped flag.
func (r *Registry) SetMapping(id string, m mapping.FieldMapping) (*Template, error) {
	tmpl, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	mappings, err := tmpl.Mappings()
	if err != nil {
		return nil, err
	}

	m.AutoMapped = false
	replaced := false
	for i := range mappings {
		if mappings[i].SourceField == m.SourceField {
			mappings[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		mappings = append(mappings, m)
	}

	if err := tmpl.setMappings(mappings); err != nil {
		return nil, err
	}
	if err := r.db.Model(tmpl).Update("mappings_json", tmpl.MappingsJSON).Error; err != nil {
		return nil, err
	}
	return tmpl, nil
}

// VerifyChecksum guards against stale cached fields: the given bytes must
// hash to the template's recorded checksum.
func (r *Registry) VerifyChecksum(tmpl *Template, pdfBytes []byte) error {
	actual := BytesChecksum(pdfBytes)
	if actual != tmpl.Checksum {
		return &ChecksumMismatchError{TemplateID: tmpl.ID, Expected: tmpl.Checksum, Actual: actual}
	}
	return nil
}

// BytesChecksum is the content hash identifying a blank template.
func BytesChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
