package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fleetmetry/fleetmetry/internal/orchestrator"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// Session is one chat conversation scoped to a workspace. A session handles
// at most one message at a time; the per-session limiter throttles how fast
// messages may arrive.
type Session struct {
	ID        string
	Workspace string
	CreatedAt time.Time

	conv    *orchestrator.Conversation
	limiter *rate.Limiter
	mu      sync.Mutex
}

// Acquire reserves the session for one request. It fails instead of waiting
// so a concurrent caller gets a busy response rather than queueing. Every
// access to the conversation happens under this lock.
func (s *Session) Acquire() bool {
	return s.mu.TryLock()
}

func (s *Session) Release() {
	s.mu.Unlock()
}

// Allow reports whether the rate limiter admits another message now.
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

func (s *Session) Conversation() *orchestrator.Conversation {
	return s.conv
}

// Clear resets the history to the seed exchange, with the post-reset
// acknowledgement in place of the original one. The caller must hold the
// session lock.
func (s *Session) Clear(historyLimit, historyKeep int) {
	s.conv = orchestrator.NewConversation(SystemPrompt, ClearedAcknowledgement)
	s.conv.SetHistoryWindow(historyLimit, historyKeep)
}

// Summary condenses the session history for the summary endpoint.
type Summary struct {
	TotalMessages     int      `json:"total_messages"`
	UserMessages      int      `json:"user_messages"`
	AssistantMessages int      `json:"assistant_messages"`
	RecentTopics      []string `json:"recent_topics"`
}

func (s *Session) Summary() Summary {
	messages := s.conv.Messages()

	var summary Summary
	summary.TotalMessages = len(messages)

	var userTexts []string
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			summary.UserMessages++
			userTexts = append(userTexts, msg.Content)
		case models.RoleAssistant:
			if msg.Content != "" {
				summary.AssistantMessages++
			}
		}
	}

	recent := userTexts
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, text := range recent {
		if len(text) > 50 {
			text = text[:50]
		}
		summary.RecentTopics = append(summary.RecentTopics, text+"...")
	}
	return summary
}

// StoreConfig tunes new sessions created by a Store.
type StoreConfig struct {
	RatePerMinute float64
	RateBurst     int
	HistoryLimit  int
	HistoryKeep   int
}

// Store holds the live chat sessions in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      StoreConfig
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = orchestrator.DefaultHistoryLimit
	}
	if cfg.HistoryKeep <= 0 {
		cfg.HistoryKeep = orchestrator.DefaultHistoryKeep
	}
	return &Store{sessions: make(map[string]*Session), cfg: cfg}
}

// Create registers a new session for the workspace and seeds its history.
func (st *Store) Create(workspace string) *Session {
	conv := orchestrator.NewConversation(SystemPrompt, Acknowledgement)
	conv.SetHistoryWindow(st.cfg.HistoryLimit, st.cfg.HistoryKeep)

	session := &Session{
		ID:        uuid.NewString(),
		Workspace: workspace,
		CreatedAt: time.Now().UTC(),
		conv:      conv,
		limiter:   rate.NewLimiter(rate.Limit(st.cfg.RatePerMinute/60.0), st.cfg.RateBurst),
	}

	st.mu.Lock()
	st.sessions[session.ID] = session
	st.mu.Unlock()
	return session
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	session, ok := st.sessions[id]
	return session, ok
}

func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) Config() StoreConfig {
	return st.cfg
}
