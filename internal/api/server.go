package api

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/universalautobrokers/dealerdocs/internal/draft"
	"github.com/universalautobrokers/dealerdocs/internal/preview"
	"github.com/universalautobrokers/dealerdocs/internal/registry"
	"github.com/universalautobrokers/dealerdocs/internal/signature"
)

// Server is the HTTP surface over the document system.
type Server struct {
	engine     *gin.Engine
	docs       *DocumentService
	registry   *registry.Registry
	drafts     *draft.Store
	signatures *signature.Service
	previews   *preview.Manager
	log        *logrus.Logger
}

// jurisdictionPattern accepts two-letter state codes plus the federal forms.
var jurisdictionPattern = regexp.MustCompile(`^([A-Z]{2}|FED)$`)

var registerValidationsOnce sync.Once

func registerValidations() {
	registerValidationsOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("jurisdiction", func(fl validator.FieldLevel) bool {
				return jurisdictionPattern.MatchString(fl.Field().String())
			})
		}
	})
}

// NewServer wires the routes. Pass debug=true to keep gin's debug output.
func NewServer(docs *DocumentService, reg *registry.Registry, drafts *draft.Store, sigs *signature.Service, previews *preview.Manager, log *logrus.Logger, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidations()

	s := &Server{
		engine:     gin.New(),
		docs:       docs,
		registry:   reg,
		drafts:     drafts,
		signatures: sigs,
		previews:   previews,
		log:        log,
	}
	s.engine.Use(gin.Recovery(), requestLogger(log))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")

	v1.POST("/templates", s.publishTemplate)
	v1.GET("/templates", s.listTemplates)
	v1.GET("/templates/:id", s.getTemplate)
	v1.PUT("/templates/:id/mappings", s.setMapping)

	v1.POST("/documents", s.generateDocument)
	v1.GET("/documents/:id", s.getDocument)
	v1.GET("/documents/:id/content", s.getDocumentContent)
	v1.PUT("/documents/:id/fields", s.saveFields)
	v1.GET("/documents/:id/versions", s.listVersions)
	v1.GET("/documents/:id/changelog", s.changeLog)
	v1.POST("/documents/:id/status", s.setStatus)
	v1.POST("/documents/:id/fork", s.forkDocument)
	v1.GET("/documents/:id/signatures", s.signatureStatus)
	v1.POST("/documents/:id/preview", s.previewMessage)

	v1.POST("/signature-sessions", s.createSession)
	v1.GET("/signature-sessions/:token", s.getSession)
	v1.POST("/signature-sessions/:token/submit", s.submitSignature)
	v1.POST("/signature-sessions/:token/cancel", s.cancelSession)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.WithField("addr", addr).Info("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("request handled")
	}
}
