// Package library keeps the avatars a podcast has produced and the subset chosen for a live
// session, and persists both as one JSON document in the object store.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/podcast-service/internal/core"
)

// DefaultKey is the object key used when none is configured.
const DefaultKey = "library/avatars.json"

var (
	// ErrNoStore indicates a persistence call on a library without a store.
	ErrNoStore = errors.New("library has no object store")
	// ErrAvatarNotFound indicates an unknown avatar id.
	ErrAvatarNotFound = errors.New("avatar not found")
)

// Document is the persisted form of a library.
type Document struct {
	Avatars []core.GeneratedAvatar `json:"avatars"`
	Live    []core.GeneratedAvatar `json:"selectedAvatarsForLive"`
}

// Library is an append-only avatar collection plus a live selection. It is safe for
// concurrent use.
type Library struct {
	mu      sync.RWMutex
	store   core.ObjectStore
	key     string
	avatars []core.GeneratedAvatar
	live    []core.GeneratedAvatar
}

// New creates an empty library. store may be nil for an in-memory library.
func New(store core.ObjectStore, key string) *Library {
	if key == "" {
		key = DefaultKey
	}

	return &Library{
		mu:      sync.RWMutex{},
		store:   store,
		key:     key,
		avatars: nil,
		live:    nil,
	}
}

// Add appends an avatar to the collection. Existing entries are never modified.
func (l *Library) Add(avatar core.GeneratedAvatar) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.avatars = append(l.avatars, avatar)
}

// Avatars returns the collection, oldest first.
func (l *Library) Avatars() []core.GeneratedAvatar {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return clone(l.avatars)
}

// Find returns the avatar with the given id.
func (l *Library) Find(id string) (core.GeneratedAvatar, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, avatar := range l.avatars {
		if avatar.ID == id {
			return avatar, true
		}
	}

	return core.GeneratedAvatar{}, false
}

// AddToLive adds an avatar to the live selection unless one with the same id is already
// there. It reports whether the selection changed.
func (l *Library) AddToLive(avatar core.GeneratedAvatar) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, selected := range l.live {
		if selected.ID == avatar.ID {
			return false
		}
	}

	l.live = append(l.live, avatar)

	return true
}

// SelectForLive adds the collection's avatar with the given id to the live selection.
func (l *Library) SelectForLive(id string) error {
	avatar, ok := l.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAvatarNotFound, id)
	}

	l.AddToLive(avatar)

	return nil
}

// RemoveFromLive drops the avatar with the given id from the live selection.
func (l *Library) RemoveFromLive(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.live[:0:0]
	for _, avatar := range l.live {
		if avatar.ID != id {
			kept = append(kept, avatar)
		}
	}

	removed := len(kept) != len(l.live)
	l.live = kept

	return removed
}

// Selected returns the live selection in the order avatars were added.
func (l *Library) Selected() []core.GeneratedAvatar {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return clone(l.live)
}

// IsSelected reports whether the avatar is part of the live selection.
func (l *Library) IsSelected(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, avatar := range l.live {
		if avatar.ID == id {
			return true
		}
	}

	return false
}

// Clear empties both the collection and the live selection.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.avatars = nil
	l.live = nil
}

// Save writes the library to the object store.
func (l *Library) Save(ctx context.Context) error {
	if l.store == nil {
		return ErrNoStore
	}

	l.mu.RLock()
	doc := Document{Avatars: clone(l.avatars), Live: clone(l.live)}
	l.mu.RUnlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal library: %w", err)
	}

	err = l.store.Upload(ctx, l.key, data)
	if err != nil {
		return fmt.Errorf("failed to save library to '%s': %w", l.key, err)
	}

	return nil
}

// Load replaces the library's contents with the stored document. A missing document
// leaves the library empty.
func (l *Library) Load(ctx context.Context) error {
	if l.store == nil {
		return ErrNoStore
	}

	data, err := l.store.Download(ctx, l.key)
	if errors.Is(err, core.ErrObjectNotFound) {
		l.Clear()

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load library from '%s': %w", l.key, err)
	}

	var doc Document

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("failed to decode library document: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.avatars = doc.Avatars
	l.live = doc.Live

	return nil
}

func clone(avatars []core.GeneratedAvatar) []core.GeneratedAvatar {
	if len(avatars) == 0 {
		return nil
	}

	return append([]core.GeneratedAvatar(nil), avatars...)
}
