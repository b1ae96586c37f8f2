package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/universalautobrokers/dealerdocs/internal/draft"
	"github.com/universalautobrokers/dealerdocs/internal/generator"
	"github.com/universalautobrokers/dealerdocs/internal/mapping"
	"github.com/universalautobrokers/dealerdocs/internal/preview"
	"github.com/universalautobrokers/dealerdocs/internal/registry"
)

// Blobs is the download side of object storage the service needs to fetch
// blank templates for filling.
type Blobs interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// DocumentBinding records which template version a document was generated
// from, so later single-field edits can refill the same blank.
type DocumentBinding struct {
	DocumentID string `gorm:"primaryKey;size:36"`
	TemplateID string `gorm:"size:36;index"`
	CreatedAt  time.Time
}

// DocumentService glues the registry, generator and draft store into the
// document lifecycle: generate, edit field by field, push previews.
// It implements preview.FieldSaver.
type DocumentService struct {
	db       *gorm.DB
	registry *registry.Registry
	gen      *generator.Generator
	drafts   *draft.Store
	blobs    Blobs
	log      *logrus.Logger

	previews *preview.Manager
}

// NewDocumentService migrates the binding schema and returns the service.
func NewDocumentService(gdb *gorm.DB, reg *registry.Registry, gen *generator.Generator, drafts *draft.Store, blobs Blobs, log *logrus.Logger) (*DocumentService, error) {
	if err := gdb.AutoMigrate(&DocumentBinding{}); err != nil {
		return nil, fmt.Errorf("migrate document bindings: %w", err)
	}
	return &DocumentService{
		db:       gdb,
		registry: reg,
		gen:      gen,
		drafts:   drafts,
		blobs:    blobs,
		log:      log,
	}, nil
}

// SetPreviews wires the preview manager in after construction; the manager
// needs the service as its FieldSaver, so the two reference each other.
func (s *DocumentService) SetPreviews(m *preview.Manager) {
	s.previews = m
}

// Generate fills the template's blank with the deal aggregate and persists
// the result as the document's next draft version.
func (s *DocumentService) Generate(ctx context.Context, templateID, documentID string, data generator.Aggregate) (*draft.DraftDocument, error) {
	tmpl, err := s.registry.GetByID(templateID)
	if err != nil {
		return nil, err
	}

	blank, err := s.blankFor(ctx, tmpl)
	if err != nil {
		return nil, err
	}

	mappings, err := tmpl.Mappings()
	if err != nil {
		return nil, err
	}
	fields, err := tmpl.Fields()
	if err != nil {
		return nil, err
	}
	// Required fields nobody mapped must fail loudly, not generate blank.
	if err := mapping.Validate(fields, mappings); err != nil {
		return nil, err
	}

	doc, err := s.gen.Generate(blank, tmpl.Checksum, mappings, data)
	if err != nil {
		return nil, err
	}

	saved, err := s.drafts.SaveFields(ctx, documentID, doc.Values, doc.Bytes, doc.Checksum)
	if err != nil {
		return nil, err
	}

	if err := s.bind(ctx, documentID, tmpl.ID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"template_id": tmpl.ID,
		"version":     saved.Version,
	}).Info("document generated")

	return saved, nil
}

// ApplyFieldChange persists a single-field edit by refilling the bound
// template with the updated value map. It returns the full resolved map and
// the new content checksum for the preview push.
func (s *DocumentService) ApplyFieldChange(ctx context.Context, documentID, fieldName, value string) (map[string]string, string, error) {
	current, err := s.drafts.Get(documentID)
	if err != nil {
		return nil, "", err
	}

	values, err := current.Values()
	if err != nil {
		return nil, "", err
	}
	values[fieldName] = value

	doc, err := s.refill(ctx, documentID, values)
	if err != nil {
		return nil, "", err
	}

	saved, err := s.drafts.SaveFields(ctx, documentID, doc.Values, doc.Bytes, doc.Checksum)
	if err != nil {
		return nil, "", err
	}
	return doc.Values, saved.Checksum, nil
}

// SaveFields persists a whole-map edit from the host UI, refilling the bound
// template, and pushes the update to an attached viewer.
func (s *DocumentService) SaveFields(ctx context.Context, documentID string, values map[string]string) (*draft.DraftDocument, error) {
	doc, err := s.refill(ctx, documentID, values)
	if err != nil {
		return nil, err
	}

	saved, err := s.drafts.SaveFields(ctx, documentID, doc.Values, doc.Bytes, doc.Checksum)
	if err != nil {
		return nil, err
	}

	if s.previews != nil {
		if session := s.previews.Session(documentID); session != nil {
			session.PushUpdate(doc.Values, saved.Checksum)
		}
	}
	return saved, nil
}

// Fork copies a finalized document into a fresh editable draft and carries
// the template binding over so the fork stays editable field by field.
func (s *DocumentService) Fork(ctx context.Context, sourceDocumentID, newDocumentID string) (*draft.DraftDocument, error) {
	doc, err := s.drafts.Fork(ctx, sourceDocumentID, newDocumentID)
	if err != nil {
		return nil, err
	}

	var binding DocumentBinding
	err = s.db.WithContext(ctx).Where("document_id = ?", sourceDocumentID).First(&binding).Error
	if err == nil {
		if err := s.bind(ctx, newDocumentID, binding.TemplateID); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) refill(ctx context.Context, documentID string, values map[string]string) (*generator.Document, error) {
	tmpl, err := s.boundTemplate(ctx, documentID)
	if err != nil {
		return nil, err
	}

	blank, err := s.blankFor(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	return s.gen.Fill(blank, tmpl.Checksum, values)
}

func (s *DocumentService) blankFor(ctx context.Context, tmpl *registry.Template) ([]byte, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("no object storage configured for template %s", tmpl.ID)
	}
	blank, err := s.blobs.Download(ctx, tmpl.StorageKey)
	if err != nil {
		return nil, err
	}
	if err := s.registry.VerifyChecksum(tmpl, blank); err != nil {
		return nil, err
	}
	return blank, nil
}

func (s *DocumentService) bind(ctx context.Context, documentID, templateID string) error {
	binding := DocumentBinding{DocumentID: documentID, TemplateID: templateID}
	return s.db.WithContext(ctx).Save(&binding).Error
}

func (s *DocumentService) boundTemplate(ctx context.Context, documentID string) (*registry.Template, error) {
	var binding DocumentBinding
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s has no template binding", documentID)
	}
	if err != nil {
		return nil, err
	}
	return s.registry.GetByID(binding.TemplateID)
}
