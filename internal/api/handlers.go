package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/universalautobrokers/dealerdocs/internal/draft"
	"github.com/universalautobrokers/dealerdocs/internal/generator"
	"github.com/universalautobrokers/dealerdocs/internal/mapping"
	"github.com/universalautobrokers/dealerdocs/internal/objstore"
	"github.com/universalautobrokers/dealerdocs/internal/pdfform"
	"github.com/universalautobrokers/dealerdocs/internal/preview"
	"github.com/universalautobrokers/dealerdocs/internal/registry"
	"github.com/universalautobrokers/dealerdocs/internal/signature"
)

// writeError maps domain errors onto HTTP statuses. Batched field errors
// surface their field lists so the UI can annotate inputs.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		genErr      *generator.GenerationError
		valErr      *mapping.ValidationError
		extractErr  *pdfform.ExtractionError
		checksumErr *registry.ChecksumMismatchError
		writeErr    *draft.ConcurrentWriteError
		expiredErr  *signature.SessionExpiredError
		consentErr  *signature.ConsentMissingError
		storageErr  *objstore.StorageError
	)

	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, draft.ErrNotFound),
		errors.Is(err, signature.ErrNotFound),
		errors.Is(err, objstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &genErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "fields": genErr.Fields})
	case errors.As(err, &valErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "fields": valErr.Fields})
	case errors.As(err, &extractErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &expiredErr):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.As(err, &consentErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &checksumErr),
		errors.As(err, &writeErr),
		errors.Is(err, draft.ErrFinalized),
		errors.Is(err, draft.ErrInvalidTransition),
		errors.Is(err, signature.ErrTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &storageErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type templateResponse struct {
	ID           string                    `json:"id"`
	DocumentType string                    `json:"documentType"`
	Jurisdiction string                    `json:"jurisdiction"`
	Version      int                       `json:"version"`
	Checksum     string                    `json:"checksum"`
	PageCount    int                       `json:"pageCount"`
	Fields       []pdfform.FieldDescriptor `json:"fields"`
	Mappings     []mapping.FieldMapping    `json:"mappings"`
	Unmapped     []string                  `json:"unmapped,omitempty"`
	Created      bool                      `json:"created,omitempty"`
}

func templateJSON(t *registry.Template) (*templateResponse, error) {
	fields, err := t.Fields()
	if err != nil {
		return nil, err
	}
	mappings, err := t.Mappings()
	if err != nil {
		return nil, err
	}
	return &templateResponse{
		ID:           t.ID,
		DocumentType: t.DocumentType,
		Jurisdiction: t.Jurisdiction,
		Version:      t.Version,
		Checksum:     t.Checksum,
		PageCount:    t.PageCount,
		Fields:       fields,
		Mappings:     mappings,
	}, nil
}

type publishRequest struct {
	DocumentType string `form:"documentType" binding:"required"`
	Jurisdiction string `form:"jurisdiction" binding:"required,jurisdiction"`
}

func (s *Server) publishTemplate(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a blank PDF file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer f.Close()
	blank, err := io.ReadAll(f)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.registry.Publish(c.Request.Context(), blank, req.DocumentType, req.Jurisdiction)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := templateJSON(result.Template)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp.Unmapped = result.Unmapped
	resp.Created = result.Created

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (s *Server) listTemplates(c *gin.Context) {
	templates, err := s.registry.List(c.Query("documentType"), c.Query("jurisdiction"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]*templateResponse, 0, len(templates))
	for i := range templates {
		resp, err := templateJSON(&templates[i])
		if err != nil {
			s.writeError(c, err)
			return
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

func (s *Server) getTemplate(c *gin.Context) {
	tmpl, err := s.registry.GetByID(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp, err := templateJSON(tmpl)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type setMappingRequest struct {
	SourceField  string  `json:"sourceField" binding:"required"`
	DataPath     string  `json:"dataPath" binding:"required"`
	Transform    string  `json:"transform" binding:"omitempty,oneof=none uppercase lowercase titlecase currency date"`
	DefaultValue string  `json:"defaultValue"`
	Required     bool    `json:"required"`
	Confidence   float64 `json:"confidence" binding:"omitempty,min=0,max=1"`
}

func (s *Server) setMapping(c *gin.Context) {
	var req setMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tmpl, err := s.registry.SetMapping(c.Param("id"), mapping.FieldMapping{
		SourceField:  req.SourceField,
		DataPath:     req.DataPath,
		Transform:    mapping.Transform(req.Transform),
		DefaultValue: req.DefaultValue,
		Required:     req.Required,
		AutoMapped:   false,
		Confidence:   req.Confidence,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := templateJSON(tmpl)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type generateRequest struct {
	TemplateID string         `json:"templateId" binding:"required,uuid4"`
	DocumentID string         `json:"documentId" binding:"required"`
	Data       map[string]any `json:"data" binding:"required"`
}

type draftResponse struct {
	DocumentID string            `json:"documentId"`
	Version    int               `json:"version"`
	Checksum   string            `json:"checksum"`
	Status     draft.Status      `json:"status"`
	Size       int64             `json:"size"`
	Values     map[string]string `json:"values"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func draftJSON(d *draft.DraftDocument) (*draftResponse, error) {
	values, err := d.Values()
	if err != nil {
		return nil, err
	}
	return &draftResponse{
		DocumentID: d.DocumentID,
		Version:    d.Version,
		Checksum:   d.Checksum,
		Status:     d.Status,
		Size:       d.Size,
		Values:     values,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

func (s *Server) generateDocument(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := s.docs.Generate(c.Request.Context(), req.TemplateID, req.DocumentID, generator.Aggregate(req.Data))
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := draftJSON(saved)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.drafts.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp, err := draftJSON(doc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getDocumentContent(c *gin.Context) {
	doc, err := s.drafts.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}

type saveFieldsRequest struct {
	Values map[string]string `json:"values" binding:"required"`
}

func (s *Server) saveFields(c *gin.Context) {
	var req saveFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := s.docs.SaveFields(c.Request.Context(), c.Param("id"), req.Values)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := draftJSON(saved)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listVersions(c *gin.Context) {
	versions, err := s.drafts.Versions(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	type versionResponse struct {
		Version   int          `json:"version"`
		Checksum  string       `json:"checksum"`
		Status    draft.Status `json:"status"`
		CreatedAt time.Time    `json:"createdAt"`
	}
	out := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionResponse{
			Version:   v.Version,
			Checksum:  v.Checksum,
			Status:    v.Status,
			CreatedAt: v.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

func (s *Server) changeLog(c *gin.Context) {
	entries, err := s.drafts.ChangeLog(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": entries})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft finalizing finalized"`
}

func (s *Server) setStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := s.drafts.SetStatus(c.Request.Context(), c.Param("id"), draft.Status(req.Status))
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := draftJSON(doc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type forkRequest struct {
	NewDocumentID string `json:"newDocumentId" binding:"required"`
}

func (s *Server) forkDocument(c *gin.Context) {
	var req forkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := s.docs.Fork(c.Request.Context(), c.Param("id"), req.NewDocumentID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := draftJSON(doc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) previewMessage(c *gin.Context) {
	session := s.previews.Session(c.Param("id"))
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active preview session"})
		return
	}

	var msg preview.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.HandleMessage(c.Request.Context(), msg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"syncing": session.Syncing()})
}

type createSessionRequest struct {
	DealID      string `json:"dealId" binding:"required"`
	DocumentID  string `json:"documentId" binding:"required"`
	SignerRole  string `json:"signerRole" binding:"required,oneof=buyer seller notary"`
	SignerName  string `json:"signerName" binding:"required"`
	SignerEmail string `json:"signerEmail" binding:"omitempty,email"`
	TTLMinutes  int    `json:"ttlMinutes" binding:"required,min=1,max=1440"`
}

type sessionResponse struct {
	Token        string           `json:"token"`
	DocumentID   string           `json:"documentId"`
	SignerRole   signature.Role   `json:"signerRole"`
	Status       signature.Status `json:"status"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	SignedAt     *time.Time       `json:"signedAt,omitempty"`
	ConsentGiven bool             `json:"consentGiven"`
}

func sessionJSON(sess *signature.Session) *sessionResponse {
	return &sessionResponse{
		Token:        sess.Token,
		DocumentID:   sess.DocumentID,
		SignerRole:   sess.SignerRole,
		Status:       sess.Status,
		ExpiresAt:    sess.ExpiresAt,
		SignedAt:     sess.SignedAt,
		ConsentGiven: sess.ConsentGiven,
	}
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.signatures.Create(c.Request.Context(), signature.CreateRequest{
		DealID:      req.DealID,
		DocumentID:  req.DocumentID,
		SignerRole:  signature.Role(req.SignerRole),
		SignerName:  req.SignerName,
		SignerEmail: req.SignerEmail,
		TTL:         time.Duration(req.TTLMinutes) * time.Minute,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionJSON(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.signatures.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON(sess))
}

type submitSignatureRequest struct {
	Consent     bool   `json:"consent"`
	ImageBase64 string `json:"imageBase64" binding:"required,base64"`
	Geolocation string `json:"geolocation"`
}

func (s *Server) submitSignature(c *gin.Context) {
	var req submitSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imageBase64 is not valid base64"})
		return
	}

	sig, err := s.signatures.Submit(c.Request.Context(), signature.SubmitRequest{
		Token:       c.Param("token"),
		Consent:     req.Consent,
		Image:       image,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Geolocation: req.Geolocation,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"signatureId":         sig.ID,
		"storageKey":          sig.StorageKey,
		"displayKey":          sig.DisplayKey,
		"scheduledDeletionAt": sig.ScheduledDeletionAt,
	})
}

func (s *Server) cancelSession(c *gin.Context) {
	sess, err := s.signatures.Cancel(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON(sess))
}

func (s *Server) signatureStatus(c *gin.Context) {
	documentID := c.Param("id")

	required := []signature.Role{signature.RoleBuyer, signature.RoleSeller}
	if raw := c.Query("roles"); raw != "" {
		required = required[:0]
		for _, r := range strings.Split(raw, ",") {
			role := signature.Role(strings.TrimSpace(r))
			if !role.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown signer role: " + string(role)})
				return
			}
			required = append(required, role)
		}
	}

	sessions, err := s.signatures.Sessions(c.Request.Context(), documentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	collected, err := s.signatures.AllCollected(c.Request.Context(), documentID, required)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]*sessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessionJSON(&sessions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"allCollected": collected, "sessions": out})
}
