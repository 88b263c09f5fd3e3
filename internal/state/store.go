package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUnknownSession is returned when operations reference an undefined key.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionExists is returned when creating a session whose key is taken.
	ErrSessionExists = errors.New("session already exists")

	keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// Manager orchestrates named conversations persisted in a sqlite database.
type Manager struct {
	mu           sync.RWMutex
	db           *sql.DB
	sessions     map[string]*Conversation
	currentKey   string
	systemPrompt string
}

// NewManager opens (or creates) the session database at path.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		return nil, errors.New("session store path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare session store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS sessions (
	key TEXT PRIMARY KEY,
	messages TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}

	mgr := &Manager{db: db, sessions: make(map[string]*Conversation)}
	if err := mgr.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return mgr, nil
}

// Close releases the underlying database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}

// SetSystemPrompt records the prompt used to seed fresh conversations.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	m.systemPrompt = prompt
	m.mu.Unlock()
}

func (m *Manager) loadAll() error {
	rows, err := m.db.QueryContext(context.Background(),
		`SELECT key, messages, created_at, updated_at FROM sessions ORDER BY key`)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, raw string
		var created, updated time.Time
		if err := rows.Scan(&key, &raw, &created, &updated); err != nil {
			return fmt.Errorf("scan session: %w", err)
		}
		var messages []Message
		if err := json.Unmarshal([]byte(raw), &messages); err != nil {
			return fmt.Errorf("decode session %s: %w", key, err)
		}
		m.sessions[key] = &Conversation{
			key:       key,
			messages:  messages,
			createdAt: created,
			updatedAt: updated,
		}
	}
	return rows.Err()
}

// SanitizeKey normalizes user-supplied session names for storage.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	return keySanitizer.ReplaceAllString(key, "-")
}

// ListKeys returns the known session keys in insertion-independent order.
func (m *Manager) ListKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Current returns the active conversation, creating a default one if none
// has been selected yet.
func (m *Manager) Current() *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentKey == "" {
		m.currentKey = "default"
	}
	return m.ensureLocked(m.currentKey)
}

func (m *Manager) ensureLocked(key string) *Conversation {
	conv, ok := m.sessions[key]
	if !ok {
		conv = NewConversation(key)
		if m.systemPrompt != "" {
			conv.Append(Message{Role: "system", Content: m.systemPrompt})
		}
		m.sessions[key] = conv
	}
	return conv
}

// Use switches to an existing session.
func (m *Manager) Use(key string) (*Conversation, error) {
	key = SanitizeKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	m.currentKey = key
	return conv, nil
}

// EnsureSession switches to a session, creating it if missing.
func (m *Manager) EnsureSession(key string) (*Conversation, error) {
	key = SanitizeKey(key)
	if key == "" {
		return nil, errors.New("session key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.ensureLocked(key)
	m.currentKey = key
	return conv, m.saveLocked(conv)
}

// NewSession creates a blank session and makes it current.
func (m *Manager) NewSession(key string) (*Conversation, error) {
	key = SanitizeKey(key)
	if key == "" {
		return nil, errors.New("session key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, key)
	}
	conv := m.ensureLocked(key)
	m.currentKey = key
	return conv, m.saveLocked(conv)
}

// Save persists the conversation's current messages.
func (m *Manager) Save(conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(conv)
}

func (m *Manager) saveLocked(conv *Conversation) error {
	raw, err := json.Marshal(conv.messages)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", conv.key, err)
	}
	created := conv.createdAt
	if created.IsZero() {
		created = time.Now()
		conv.createdAt = created
	}
	conv.updatedAt = time.Now()
	_, err = m.db.ExecContext(context.Background(), `
INSERT INTO sessions (key, messages, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		conv.key, string(raw), created, conv.updatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", conv.key, err)
	}
	return nil
}

// Delete removes a stored session. Deleting the active session resets the
// manager to the default key.
func (m *Manager) Delete(key string) error {
	key = SanitizeKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	if _, err := m.db.ExecContext(context.Background(),
		`DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	delete(m.sessions, key)
	if m.currentKey == key {
		m.currentKey = ""
	}
	return nil
}

// ClearCurrent wipes the active session's history, keeping the system prompt.
func (m *Manager) ClearCurrent() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentKey == "" {
		m.currentKey = "default"
	}
	conv := m.ensureLocked(m.currentKey)
	conv.Clear(m.systemPrompt)
	return m.saveLocked(conv)
}
