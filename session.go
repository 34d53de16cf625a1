package omniagent

import (
	"sync"
	"time"
)

// MaxHistoryMessages bounds per-session chat history.
const MaxHistoryMessages = 30

// SessionTTL is how long an untouched session survives before cleanup.
const SessionTTL = 30 * time.Minute

// ImageArtifact is the most recent image produced in a session.
type ImageArtifact struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// AudioArtifact is the most recent audio produced in a session.
type AudioArtifact struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

// DocArtifact is the most recent document produced in a session. Text is
// capped at 2000 chars so the slot stays cheap to carry.
type DocArtifact struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

// LineageEdge records that one artifact was derived from another.
type LineageEdge struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	Op       string `json:"op"`
	TSMs     int64  `json:"ts_ms"`
}

// ArtifactMemory keeps the latest artifact per modality plus derivation
// edges. One slot per modality: new artifacts replace old ones.
type ArtifactMemory struct {
	Image   *ImageArtifact           `json:"image,omitempty"`
	Audio   *AudioArtifact           `json:"audio,omitempty"`
	Doc     *DocArtifact             `json:"doc,omitempty"`
	Lineage map[string][]LineageEdge `json:"lineage"`
}

// NewArtifactMemory returns an empty memory with lineage lists initialized
// for each modality.
func NewArtifactMemory() *ArtifactMemory {
	return &ArtifactMemory{
		Lineage: map[string][]LineageEdge{"image": {}, "audio": {}, "doc": {}},
	}
}

// RecordImage replaces the image slot and, when the new image was edited
// from a different parent, appends a lineage edge.
func (m *ArtifactMemory) RecordImage(art ImageArtifact, parentID string) {
	if parentID != "" && parentID != art.ID {
		m.Lineage["image"] = append(m.Lineage["image"], LineageEdge{
			ParentID: parentID,
			ChildID:  art.ID,
			Op:       "edit",
			TSMs:     NowMillis(),
		})
	}
	m.Image = &art
}

// RecordAudio replaces the audio slot.
func (m *ArtifactMemory) RecordAudio(art AudioArtifact) { m.Audio = &art }

// RecordDoc replaces the doc slot, capping text at 2000 chars.
func (m *ArtifactMemory) RecordDoc(art DocArtifact) {
	if len(art.Text) > 2000 {
		art.Text = art.Text[:2000]
	}
	m.Doc = &art
}

// Session is the per-client conversation state.
type Session struct {
	ID              string
	History         []ChatMessage
	Attachments     []Attachment
	Artifacts       *ArtifactMemory
	LastImagePrompt string

	touched time.Time
}

// AppendTurn records a user/assistant exchange, dropping the assistant
// entry when the run produced no text, and bounds history.
func (s *Session) AppendTurn(userText, assistantText string) {
	s.History = append(s.History, UserMessage(userText))
	if assistantText != "" {
		s.History = append(s.History, AssistantMessage(assistantText))
	}
	if n := len(s.History); n > MaxHistoryMessages {
		s.History = s.History[n-MaxHistoryMessages:]
	}
}

// SessionStore is an in-memory session registry with TTL eviction.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionTTL overrides the default session TTL.
func WithSessionTTL(ttl time.Duration) SessionStoreOption {
	return func(s *SessionStore) { s.ttl = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore creates an empty store.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      SessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session for id, creating it on first touch. Every access
// refreshes the TTL clock.
func (s *SessionStore) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, Artifacts: NewArtifactMemory()}
		s.sessions[id] = sess
	}
	if sess.Artifacts == nil {
		sess.Artifacts = NewArtifactMemory()
	}
	if sess.Artifacts.Lineage == nil {
		sess.Artifacts.Lineage = map[string][]LineageEdge{"image": {}, "audio": {}, "doc": {}}
	}
	sess.touched = s.now()
	return sess
}

// Cleanup evicts sessions idle past the TTL and returns the ids removed,
// so callers can drop per-session indexes and on-disk assets too.
func (s *SessionStore) Cleanup() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed []string
	for id, sess := range s.sessions {
		if now.Sub(sess.touched) > s.ttl {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
