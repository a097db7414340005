// Package notes is the single authority for mutating note state and keeping
// the search mirror approximately in sync. The note store is the system of
// record; mirror writes are best-effort and never roll back or fail the
// primary operation. Search delegates to the mirror alone and has no
// fallback, so mirror failures on that path surface to the caller.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/ezzyraouy/smartnote-api/internal/search"
	"github.com/ezzyraouy/smartnote-api/internal/store"
)

// ErrNotFound covers both a nonexistent note and a note owned by a
// different user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("note not found")

type noteStore interface {
	CreateNote(ctx context.Context, note store.Note) (store.Note, error)
	ListNotes(ctx context.Context, userID int64) ([]store.Note, error)
	GetNote(ctx context.Context, noteID, userID int64) (store.Note, error)
	UpdateNote(ctx context.Context, note store.Note) (store.Note, error)
	DeleteNote(ctx context.Context, noteID, userID int64) (bool, error)
}

type Service struct {
	store  noteStore
	mirror search.Mirror
}

func New(noteStore noteStore, mirror search.Mirror) *Service {
	return &Service{store: noteStore, mirror: mirror}
}

// Create persists a new note and propagates it to the search mirror. A
// mirror failure does not undo the create; the entry stays missing until a
// later update retries propagation.
func (s *Service) Create(ctx context.Context, ownerID int64, title, content string) (store.Note, error) {
	note, err := s.store.CreateNote(ctx, store.Note{
		Title:   title,
		Content: content,
		UserID:  ownerID,
	})
	if err != nil {
		return store.Note{}, err
	}

	if err := s.mirror.Upsert(search.EntryFromNote(note)); err != nil {
		log.Printf("notes: mirror upsert after create %d: %v", note.ID, err)
	}
	return note, nil
}

// List returns the owner's notes, most recently modified first.
func (s *Service) List(ctx context.Context, ownerID int64) ([]store.Note, error) {
	return s.store.ListNotes(ctx, ownerID)
}

// Get fetches one note scoped by both identifier and owner.
func (s *Service) Get(ctx context.Context, noteID, ownerID int64) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Note{}, ErrNotFound
		}
		return store.Note{}, fmt.Errorf("get note: %w", err)
	}
	return note, nil
}

// Update applies a partial update. A nil field is left unchanged; a present
// value, including the empty string, overwrites. The full updated record is
// re-propagated to the mirror with overwrite semantics.
func (s *Service) Update(ctx context.Context, noteID, ownerID int64, title, content *string) (store.Note, error) {
	note, err := s.Get(ctx, noteID, ownerID)
	if err != nil {
		return store.Note{}, err
	}

	if title != nil {
		note.Title = *title
	}
	if content != nil {
		note.Content = *content
	}

	updated, err := s.store.UpdateNote(ctx, note)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Note{}, ErrNotFound
		}
		return store.Note{}, err
	}

	if err := s.mirror.Upsert(search.EntryFromNote(updated)); err != nil {
		log.Printf("notes: mirror upsert after update %d: %v", updated.ID, err)
	}
	return updated, nil
}

// Delete removes a note after the ownership check, then attempts removal
// from the mirror. Mirror removal failure is logged only and never reverts
// the primary deletion.
func (s *Service) Delete(ctx context.Context, noteID, ownerID int64) error {
	note, err := s.Get(ctx, noteID, ownerID)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteNote(ctx, note.ID, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if err := s.mirror.Remove(search.EntryFromNote(note).ID); err != nil {
		log.Printf("notes: mirror remove after delete %d: %v", note.ID, err)
	}
	return nil
}

// Search delegates entirely to the mirror, constrained to the owner's
// entries. Freshness is bounded by how promptly prior mutations propagated.
func (s *Service) Search(ctx context.Context, query string, ownerID int64) ([]search.Entry, error) {
	entries, err := s.mirror.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []search.Entry{}
	}
	return entries, nil
}
