// Package preview keeps one embedded viewer per document in sync with
// host-side edits. The channel is best-effort by design: the draft store is
// the source of truth, so a lost or unacknowledged push is never fatal and
// never blocks the caller.
package preview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MessageType discriminates the three protocol messages.
type MessageType string

const (
	MessageFieldChange     MessageType = "field-change"
	MessageFieldUpdatePush MessageType = "field-update-push"
	MessageUpdateAck       MessageType = "update-ack"
)

// Message is the protocol envelope exchanged with a viewer.
type Message struct {
	Type        MessageType       `json:"type"`
	FieldName   string            `json:"fieldName,omitempty"`
	Value       string            `json:"value,omitempty"`
	FieldValues map[string]string `json:"fieldValues,omitempty"`
	ContentRef  string            `json:"contentRef,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// SyncOutcome records how the last push concluded.
type SyncOutcome string

const (
	OutcomeNone    SyncOutcome = ""
	OutcomeAcked   SyncOutcome = "acked"
	OutcomeTimeout SyncOutcome = "timeout"
)

// Viewer is the delivery side of the channel into the embedded viewer.
type Viewer interface {
	Deliver(Message) error
}

// FieldSaver persists a viewer-originated field change and returns the full
// resolved field map plus a reference to the regenerated content.
type FieldSaver interface {
	ApplyFieldChange(ctx context.Context, documentID, fieldName, value string) (map[string]string, string, error)
}

// Session syncs exactly one viewer instance with one document.
type Session struct {
	DocumentID       string
	ViewerInstanceID string

	viewer     Viewer
	saver      FieldSaver
	ackTimeout time.Duration
	log        *logrus.Logger
	now        func() time.Time

	mu          sync.Mutex
	syncing     bool
	lastOutcome SyncOutcome
	ackCh       chan struct{}
}

// HandleMessage processes a viewer-to-host message.
func (s *Session) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageFieldChange:
		values, contentRef, err := s.saver.ApplyFieldChange(ctx, s.DocumentID, msg.FieldName, msg.Value)
		if err != nil {
			return err
		}
		s.PushUpdate(values, contentRef)
		return nil
	case MessageUpdateAck:
		select {
		case s.ackCh <- struct{}{}:
		default:
		}
		return nil
	default:
		return fmt.Errorf("unexpected viewer message type %q", msg.Type)
	}
}

// PushUpdate sends the full resolved field map to the viewer and waits, off
// the caller's goroutine, a bounded interval for the acknowledgment. On
// timeout the syncing indicator clears without any retry.
func (s *Session) PushUpdate(values map[string]string, contentRef string) {
	s.mu.Lock()
	s.syncing = true
	s.lastOutcome = OutcomeNone
	// Drop any stale ack from a previous round.
	select {
	case <-s.ackCh:
	default:
	}
	s.mu.Unlock()

	msg := Message{
		Type:        MessageFieldUpdatePush,
		FieldValues: values,
		ContentRef:  contentRef,
		Timestamp:   s.now(),
	}
	if err := s.viewer.Deliver(msg); err != nil {
		s.finish(OutcomeTimeout)
		s.log.WithFields(logrus.Fields{
			"document_id": s.DocumentID,
			"viewer":      s.ViewerInstanceID,
		}).WithError(err).Warn("preview push delivery failed")
		return
	}

	go func() {
		timer := time.NewTimer(s.ackTimeout)
		defer timer.Stop()
		select {
		case <-s.ackCh:
			s.finish(OutcomeAcked)
		case <-timer.C:
			s.finish(OutcomeTimeout)
		}
	}()
}

func (s *Session) finish(outcome SyncOutcome) {
	s.mu.Lock()
	s.syncing = false
	s.lastOutcome = outcome
	s.mu.Unlock()
}

// Syncing reports whether a push is still awaiting acknowledgment.
func (s *Session) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// LastSyncOutcome is the observable result of the most recent push.
func (s *Session) LastSyncOutcome() SyncOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// Manager tracks the single synced viewer per document.
type Manager struct {
	saver      FieldSaver
	ackTimeout time.Duration
	log        *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*Session // by documentID
}

// NewManager creates a manager pushing through the given saver.
func NewManager(saver FieldSaver, ackTimeout time.Duration, log *logrus.Logger) *Manager {
	return &Manager{
		saver:      saver,
		ackTimeout: ackTimeout,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Attach binds a viewer instance to a document, replacing any viewer synced
// to it before: exactly one viewer is synced per document at a time.
func (m *Manager) Attach(documentID, viewerInstanceID string, viewer Viewer) *Session {
	session := &Session{
		DocumentID:       documentID,
		ViewerInstanceID: viewerInstanceID,
		viewer:           viewer,
		saver:            m.saver,
		ackTimeout:       m.ackTimeout,
		log:              m.log,
		now:              time.Now,
		ackCh:            make(chan struct{}, 1),
	}

	m.mu.Lock()
	m.sessions[documentID] = session
	m.mu.Unlock()

	return session
}

// Detach removes the viewer synced to a document, if any.
func (m *Manager) Detach(documentID string) {
	m.mu.Lock()
	delete(m.sessions, documentID)
	m.mu.Unlock()
}

// Session returns the active session for a document, or nil.
func (m *Manager) Session(documentID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[documentID]
}
