package notes

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ezzyraouy/smartnote-api/internal/search"
	"github.com/ezzyraouy/smartnote-api/internal/store"
)

// memStore is an in-memory note store with a stepping clock so that every
// mutation gets a strictly later timestamp.
type memStore struct {
	mu     sync.Mutex
	notes  map[int64]store.Note
	nextID int64
	now    time.Time

	createNoteFn func(context.Context, store.Note) (store.Note, error)
	deleteNoteFn func(context.Context, int64, int64) (bool, error)
}

func newMemStore() *memStore {
	return &memStore{
		notes: make(map[int64]store.Note),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.now = m.now.Add(time.Millisecond)
	return m.now
}

func (m *memStore) CreateNote(ctx context.Context, note store.Note) (store.Note, error) {
	if m.createNoteFn != nil {
		return m.createNoteFn(ctx, note)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	note.ID = m.nextID
	created := m.tick()
	note.CreatedAt = created
	note.UpdatedAt = created
	m.notes[note.ID] = note
	return note, nil
}

func (m *memStore) ListNotes(_ context.Context, userID int64) ([]store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []store.Note
	for _, note := range m.notes {
		if note.UserID == userID {
			items = append(items, note)
		}
	}
	// updated_at desc, matching the store's ORDER BY
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[j].UpdatedAt.After(items[i].UpdatedAt) {
				items[i], items[j] = items[j], items[i]
			}
		}
	}
	return items, nil
}

func (m *memStore) GetNote(_ context.Context, noteID, userID int64) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return store.Note{}, sql.ErrNoRows
	}
	return note, nil
}

func (m *memStore) UpdateNote(_ context.Context, note store.Note) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.notes[note.ID]
	if !ok || current.UserID != note.UserID {
		return store.Note{}, sql.ErrNoRows
	}
	note.CreatedAt = current.CreatedAt
	note.UpdatedAt = m.tick()
	m.notes[note.ID] = note
	return note, nil
}

func (m *memStore) DeleteNote(ctx context.Context, noteID, userID int64) (bool, error) {
	if m.deleteNoteFn != nil {
		return m.deleteNoteFn(ctx, noteID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return false, nil
	}
	delete(m.notes, noteID)
	return true, nil
}

// fakeMirror records upserts/removes and answers queries by substring match.
// upserts keeps the arrival order of writes.
type fakeMirror struct {
	mu      sync.Mutex
	entries map[string]search.Entry
	upserts []search.Entry

	upsertErr error
	removeErr error
	queryErr  error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{entries: make(map[string]search.Entry)}
}

func (f *fakeMirror) Upsert(entry search.Entry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.ID] = entry
	f.upserts = append(f.upserts, entry)
	return nil
}

func (f *fakeMirror) Remove(id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	return nil
}

func (f *fakeMirror) Query(text string, userID int64) ([]search.Entry, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []search.Entry
	for _, entry := range f.entries {
		if entry.UserID != userID {
			continue
		}
		if text == "" || strings.Contains(entry.Title, text) || strings.Contains(entry.Content, text) {
			results = append(results, entry)
		}
	}
	return results, nil
}

func (f *fakeMirror) Healthy() bool { return true }

func newTestService() (*Service, *memStore, *fakeMirror) {
	ms := newMemStore()
	mirror := newFakeMirror()
	return New(ms, mirror), ms, mirror
}

func TestCreateThenGetReturnsPersistedNote(t *testing.T) {
	service, _, mirror := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "Shopping", "milk, eggs")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected a generated note id")
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("expected equal timestamps on creation, got created=%v updated=%v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := service.Get(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("Get after Create failed: %v", err)
	}
	if got != created {
		t.Errorf("read-your-writes violated: got %+v want %+v", got, created)
	}

	entry, ok := mirror.entries["1"]
	if !ok {
		t.Fatal("expected mirror entry after create")
	}
	if entry.Title != "Shopping" || entry.Content != "milk, eggs" || entry.UserID != 1 {
		t.Errorf("mirror entry mismatch: %+v", entry)
	}
}

func TestGetOtherUsersNoteReturnsNotFound(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "Private", "secret")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = service.Get(ctx, created.ID, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner, got %v", err)
	}

	// Identical to fetching a note that does not exist at all.
	_, err = service.Get(ctx, created.ID+1000, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing note, got %v", err)
	}
}

func TestDeleteTwiceSecondCallNotFound(t *testing.T) {
	service, _, mirror := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "once", "only")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := service.Delete(ctx, created.ID, 1); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if _, ok := mirror.entries["1"]; ok {
		t.Error("expected mirror entry removed after delete")
	}

	err = service.Delete(ctx, created.ID, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPartialUpdatePreservesUntouchedFields(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "Title", "Content")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newTitle := "X"
	updated, err := service.Update(ctx, created.ID, 1, &newTitle, nil)
	if err != nil {
		t.Fatalf("Update title failed: %v", err)
	}
	if updated.Title != "X" || updated.Content != "Content" {
		t.Errorf("title-only update changed content: %+v", updated)
	}

	newContent := "Y"
	updated, err = service.Update(ctx, created.ID, 1, nil, &newContent)
	if err != nil {
		t.Fatalf("Update content failed: %v", err)
	}
	if updated.Title != "X" || updated.Content != "Y" {
		t.Errorf("content-only update changed title: %+v", updated)
	}

	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("expected updated timestamp to advance: %v vs %v", updated.UpdatedAt, created.UpdatedAt)
	}
}

func TestUpdateWithEmptyStringClearsField(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "Title", "Content")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	empty := ""
	updated, err := service.Update(ctx, created.ID, 1, &empty, nil)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "" {
		t.Errorf("expected empty string to clear title, got %q", updated.Title)
	}
	if updated.Content != "Content" {
		t.Errorf("expected content untouched, got %q", updated.Content)
	}
}

func TestUpdateOtherUsersNoteReturnsNotFound(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "mine", "keep out")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	title := "stolen"
	_, err = service.Update(ctx, created.ID, 2, &title, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersByMostRecentlyModified(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	a, _ := service.Create(ctx, 1, "A", "")
	b, _ := service.Create(ctx, 1, "B", "")
	c, _ := service.Create(ctx, 1, "C", "")

	touched := "A touched"
	if _, err := service.Update(ctx, a.ID, 1, &touched, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, err := service.List(ctx, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(items))
	}
	wantOrder := []int64{a.ID, c.ID, b.ID}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Fatalf("position %d: got note %d, want %d (full order %v)", i, items[i].ID, want, items)
		}
	}
}

func TestListExcludesOtherUsersNotes(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	service.Create(ctx, 1, "mine", "")
	service.Create(ctx, 2, "theirs", "")

	items, err := service.List(ctx, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "mine" {
		t.Fatalf("expected only user 1 notes, got %+v", items)
	}
}

func TestSearchScopedToOwner(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	service.Create(ctx, 1, "groceries", "milk")
	service.Create(ctx, 2, "groceries", "milk")

	entries, err := service.Search(ctx, "milk", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].UserID != 1 {
		t.Errorf("search leaked another user's entry: %+v", entries[0])
	}
}

func TestMirrorFailureDoesNotFailWrites(t *testing.T) {
	service, ms, mirror := newTestService()
	ctx := context.Background()
	mirror.upsertErr = search.ErrUnavailable
	mirror.removeErr = search.ErrUnavailable

	created, err := service.Create(ctx, 1, "resilient", "primary wins")
	if err != nil {
		t.Fatalf("Create must not fail on mirror error: %v", err)
	}
	if _, ok := mirror.entries["1"]; ok {
		t.Fatal("mirror should be missing the entry after failed upsert")
	}

	title := "still resilient"
	if _, err := service.Update(ctx, created.ID, 1, &title, nil); err != nil {
		t.Fatalf("Update must not fail on mirror error: %v", err)
	}

	if err := service.Delete(ctx, created.ID, 1); err != nil {
		t.Fatalf("Delete must not fail on mirror error: %v", err)
	}
	if _, ok := ms.notes[created.ID]; ok {
		t.Fatal("primary deletion must hold regardless of mirror outcome")
	}
}

func TestMirrorRecoversOnNextUpdate(t *testing.T) {
	service, _, mirror := newTestService()
	ctx := context.Background()

	mirror.upsertErr = search.ErrUnavailable
	created, err := service.Create(ctx, 1, "stale", "v1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Mirror comes back; the next update re-propagates the full record.
	mirror.upsertErr = nil
	content := "v2"
	if _, err := service.Update(ctx, created.ID, 1, nil, &content); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	entry, ok := mirror.entries["1"]
	if !ok {
		t.Fatal("expected mirror entry after recovery")
	}
	if entry.Content != "v2" {
		t.Errorf("expected overwrite with latest record, got %+v", entry)
	}
}

func TestSearchSurfacesMirrorFailure(t *testing.T) {
	service, _, mirror := newTestService()
	mirror.queryErr = search.ErrUnavailable

	_, err := service.Search(context.Background(), "anything", 1)
	if !errors.Is(err, search.ErrUnavailable) {
		t.Fatalf("expected mirror failure to surface on search, got %v", err)
	}
}

// Two racing updates to the same note may land in one order at the store
// and the other at the mirror. Both must complete, and the divergence is
// observable rather than silently repaired.
func TestConcurrentUpdatesMayDivergeAcrossStores(t *testing.T) {
	service, _, mirror := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, 1, "seed", "v0")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	titles := []string{"left", "right"}
	errs := make([]error, len(titles))
	var wg sync.WaitGroup
	for i := range titles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Update(ctx, created.ID, 1, &titles[i], nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Update %d failed: %v", i, err)
		}
	}

	final, err := service.Get(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("Get after concurrent updates failed: %v", err)
	}
	if final.Title != "left" && final.Title != "right" {
		t.Fatalf("store holds neither update: %+v", final)
	}

	// One upsert for the create plus one per update, in arrival order.
	if len(mirror.upserts) != 3 {
		t.Fatalf("expected 3 mirror upserts, got %d", len(mirror.upserts))
	}
	last := mirror.upserts[len(mirror.upserts)-1]
	if last.Title != "left" && last.Title != "right" {
		t.Fatalf("mirror holds neither update: %+v", last)
	}
	if last.Title != final.Title {
		t.Logf("store/mirror divergence observed: store=%q mirror=%q", final.Title, last.Title)
	}
}

func TestCreateSurfacesStoreFailure(t *testing.T) {
	service, ms, mirror := newTestService()
	storeErr := errors.New("store unavailable")
	ms.createNoteFn = func(context.Context, store.Note) (store.Note, error) {
		return store.Note{}, storeErr
	}

	_, err := service.Create(context.Background(), 1, "x", "y")
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store failure to propagate, got %v", err)
	}
	if len(mirror.entries) != 0 {
		t.Error("mirror must not be written when the primary write fails")
	}
}
