// Package bookmarks keeps the solutions a user saved for later.
package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/remedy/pkg/kv"
)

// Key is the store key bookmarks are persisted under.
const Key = "remedy.bookmarks"

// ErrNotFound is returned by Remove for an unknown id.
var ErrNotFound = errors.New("bookmark not found")

// Bookmark is a saved solution. Solution is opaque to remedy.
type Bookmark struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Solution  map[string]any `json:"solution,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Book is the bookmark collection of one store.
type Book struct {
	mu    sync.Mutex
	store kv.Store
	items []Bookmark
	now   func() time.Time
}

// Open loads bookmarks from store. A corrupt value yields an empty book.
func Open(store kv.Store, log *zap.Logger) (*Book, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Book{store: store, now: time.Now}
	raw, ok, err := store.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	if !ok || raw == "" {
		return b, nil
	}
	if err := json.Unmarshal([]byte(raw), &b.items); err != nil {
		log.Warn("bookmarks are corrupt; starting empty", zap.Error(err))
		b.items = nil
	}
	return b, nil
}

// Add saves a solution under title and returns the new bookmark.
func (b *Book) Add(title string, solution map[string]any) (Bookmark, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Bookmark{}, errors.New("bookmark title is required")
	}
	bm := Bookmark{
		ID:        uuid.NewString(),
		Title:     title,
		Solution:  solution,
		CreatedAt: b.now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	next := append(slices.Clip(b.items), bm)
	if err := b.save(next); err != nil {
		return Bookmark{}, err
	}
	b.items = next
	return bm, nil
}

// List returns bookmarks oldest first.
func (b *Book) List() []Bookmark {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Remove deletes the bookmark with id.
func (b *Book) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.items, func(bm Bookmark) bool { return bm.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := slices.Delete(slices.Clone(b.items), i, i+1)
	if err := b.save(next); err != nil {
		return err
	}
	b.items = next
	return nil
}

func (b *Book) save(items []Bookmark) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal bookmarks: %w", err)
	}
	if err := b.store.Set(Key, string(data)); err != nil {
		return fmt.Errorf("save bookmarks: %w", err)
	}
	return nil
}
