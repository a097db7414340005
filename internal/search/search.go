package search

import (
	"errors"
	"strconv"
	"time"

	"github.com/ezzyraouy/smartnote-api/internal/store"
)

// ErrUnavailable is returned when the remote search index cannot be reached
// or rejects an operation.
var ErrUnavailable = errors.New("search mirror unavailable")

// Entry is the denormalized projection of a note held by the search index.
// It is not authoritative and may be stale or absent relative to the note
// store.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Mirror is the capability boundary consumed by the note lifecycle manager.
//
// Upsert and Remove are idempotent: re-submitting the same identifier
// overwrites prior content entirely, and removing a nonexistent identifier
// is not an error.
type Mirror interface {
	Upsert(entry Entry) error
	Remove(id string) error
	Query(text string, userID int64) ([]Entry, error)
	Healthy() bool
}

// EntryFromNote projects a note into its mirror representation.
func EntryFromNote(note store.Note) Entry {
	return Entry{
		ID:        strconv.FormatInt(note.ID, 10),
		Title:     note.Title,
		Content:   note.Content,
		UserID:    note.UserID,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}
