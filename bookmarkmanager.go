package graphbolt

import "sync"

// BookmarkManager tracks the latest bookmark set per database so new
// sessions can causally chain after prior work without the caller threading
// bookmark strings through by hand. Spec.md's non-goals scope the
// bookmark manager to its interface contract; this package still carries a
// usable default plus a second pluggable backend (bookmarkmanager_azure.go)
// to prove the interface is genuinely swappable, the way aznet.Metrics is.
type BookmarkManager interface {
	// GetBookmarks returns the bookmark set currently tracked for database.
	GetBookmarks(database string) []string
	// UpdateBookmarks replaces database's bookmark set after a transaction
	// commits with a fresh bookmark.
	UpdateBookmarks(database string, bookmarks []string)
}

// InMemoryBookmarkManager is the default BookmarkManager: a mutex-guarded
// map, no persistence across process restarts.
type InMemoryBookmarkManager struct {
	mu    sync.RWMutex
	byDB  map[string][]string
}

// NewInMemoryBookmarkManager builds an empty InMemoryBookmarkManager.
func NewInMemoryBookmarkManager() *InMemoryBookmarkManager {
	return &InMemoryBookmarkManager{byDB: make(map[string][]string)}
}

func (m *InMemoryBookmarkManager) GetBookmarks(database string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bms := m.byDB[database]
	out := make([]string, len(bms))
	copy(out, bms)
	return out
}

func (m *InMemoryBookmarkManager) UpdateBookmarks(database string, bookmarks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(bookmarks))
	copy(out, bookmarks)
	m.byDB[database] = out
}

var _ BookmarkManager = (*InMemoryBookmarkManager)(nil)
